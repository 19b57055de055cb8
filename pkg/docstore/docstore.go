package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/servicehub/internal/config"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Open connects to MongoDB and returns the configured database. The client is
// disconnected when the application stops.
func Open(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*mongo.Database, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName(cfg.AppName).
		SetServerSelectionTimeout(10 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx, readpref.Primary())
			},
			OnStop: func(ctx context.Context) error {
				log.Info("disconnecting mongo client")
				return client.Disconnect(ctx)
			},
		})
	}

	log.Info("mongo configured", zap.String("database", cfg.MongoDatabase))
	return client.Database(cfg.MongoDatabase), nil
}

func IsNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// EnsureIndexes creates the given indexes per collection. Existing identical
// indexes are left untouched by the server.
func EnsureIndexes(ctx context.Context, database *mongo.Database, indexes map[string][]mongo.IndexModel) error {
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		if _, err := database.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", col, err)
		}
	}
	return nil
}
