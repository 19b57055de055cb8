package db

import (
	"context"

	"github.com/smallbiznis/servicehub/pkg/tx"
	"gorm.io/gorm"
)

type txKey struct{}

// TxManager implements tx.Manager on top of gorm transactions.
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) tx.Manager {
	return &TxManager{db: db}
}

func (m *TxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction bound to ctx, or fallback when none is active.
func Conn(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return fallback.WithContext(ctx)
}
