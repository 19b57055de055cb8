// Package storage selects the persistence backend: gorm for the SQL
// databases, the mongo driver for DATABASE_TYPE=mongo.
package storage

import (
	"context"
	"maps"

	catalogrepo "github.com/smallbiznis/servicehub/internal/catalog/repository"
	"github.com/smallbiznis/servicehub/internal/config"
	"github.com/smallbiznis/servicehub/internal/migration"
	subscriptionrepo "github.com/smallbiznis/servicehub/internal/subscription/repository"
	"github.com/smallbiznis/servicehub/pkg/db"
	"github.com/smallbiznis/servicehub/pkg/docstore"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires repositories and the transaction manager for dbType.
func Module(dbType string) fx.Option {
	if dbType == config.DBTypeMongo {
		return fx.Module("storage.mongo",
			fx.Provide(
				docstore.Open,
				docstore.NewTxManager,
				catalogrepo.NewMongo,
				subscriptionrepo.NewMongo,
			),
			fx.Invoke(ensureIndexes),
		)
	}

	return fx.Module("storage.sql",
		fx.Provide(
			db.Open,
			db.NewTxManager,
			catalogrepo.NewGorm,
			subscriptionrepo.NewGorm,
			provideModels,
		),
		migration.Module,
	)
}

func provideModels() migration.Models {
	models := append([]any{}, catalogrepo.Models()...)
	return append(models, subscriptionrepo.Models()...)
}

func ensureIndexes(lc fx.Lifecycle, database *mongo.Database, log *zap.Logger) {
	indexes := catalogrepo.MongoIndexes()
	maps.Copy(indexes, subscriptionrepo.MongoIndexes())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("ensuring mongo indexes", zap.Int("collections", len(indexes)))
			return docstore.EnsureIndexes(ctx, database, indexes)
		},
	})
}
