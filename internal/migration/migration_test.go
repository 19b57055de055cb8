package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/servicehub/internal/config"
	"github.com/smallbiznis/servicehub/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestRunMigrations_RequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}

type widget struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func TestApply_AutoMigratesNonPostgres(t *testing.T) {
	conn := dbtest.Open(t)

	require.NoError(t, Apply(conn, config.DBTypeSQLite, Models{&widget{}}, zap.NewNop()))
	assert.True(t, conn.Migrator().HasTable(&widget{}))

	// Re-applying is a no-op.
	require.NoError(t, Apply(conn, config.DBTypeSQLite, Models{&widget{}}, zap.NewNop()))
}

func TestApply_RequiresHandle(t *testing.T) {
	assert.Error(t, Apply(nil, config.DBTypeSQLite, nil, zap.NewNop()))
}

func TestEmbeddedSource_ListsFirstVersion(t *testing.T) {
	src, err := embeddedSource()
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)
}
