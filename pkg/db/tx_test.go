package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/servicehub/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type counter struct {
	ID    int64 `gorm:"primaryKey"`
	Value int64
}

func openTestDB(t *testing.T) *gorm.DB {
	return dbtest.Open(t, &counter{})
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	conn := openTestDB(t)
	manager := NewTxManager(conn)
	boom := errors.New("boom")

	err := manager.WithinTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, Conn(ctx, conn).Create(&counter{ID: 1, Value: 1}).Error)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&counter{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTxManager_NestedCallsJoinOuterTransaction(t *testing.T) {
	conn := openTestDB(t)
	manager := NewTxManager(conn)

	err := manager.WithinTransaction(context.Background(), func(ctx context.Context) error {
		return manager.WithinTransaction(ctx, func(inner context.Context) error {
			return Conn(inner, conn).Create(&counter{ID: 1, Value: 1}).Error
		})
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, conn.Model(&counter{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: services.slug")))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert service: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}
