package docstore

import (
	"context"

	"github.com/smallbiznis/servicehub/pkg/tx"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// TxManager runs callbacks inside a MongoDB session transaction. Operations
// issued with the callback context join the transaction. Requires a replica set.
type TxManager struct {
	client *mongo.Client
}

func NewTxManager(db *mongo.Database) tx.Manager {
	return &TxManager{client: db.Client()}
}

func (m *TxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, fn(txCtx)
	})
	return err
}
