package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/servicehub/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationsDir   = "migrations"
	migrationsTable = "servicehub_schema_migrations"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models is supplied by the storage module: every gorm model of every repository.
type Models []any

// Apply brings the schema up to date. Postgres runs the versioned SQL files;
// mysql and sqlite are migrated from the gorm models.
func Apply(conn *gorm.DB, dbType string, models Models, log *zap.Logger) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}

	if dbType == config.DBTypePostgres {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		log.Info("applying postgres migrations", zap.String("table", migrationsTable))
		return RunMigrations(sqlDB)
	}

	log.Info("auto-migrating schema", zap.String("type", dbType), zap.Int("models", len(models)))
	if err := conn.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate %s: %w", dbType, err)
	}
	return nil
}

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	source, err := embeddedSource()
	if err != nil {
		return err
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// migrator.Close would close the shared *sql.DB.
	return nil
}

func embeddedSource() (source.Driver, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	driver, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return driver, nil
}
