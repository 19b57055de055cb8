package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicehub/internal/catalog"
	"github.com/smallbiznis/servicehub/internal/clock"
	"github.com/smallbiznis/servicehub/internal/config"
	"github.com/smallbiznis/servicehub/internal/observability"
	"github.com/smallbiznis/servicehub/internal/ratelimit"
	"github.com/smallbiznis/servicehub/internal/server"
	"github.com/smallbiznis/servicehub/internal/storage"
	"github.com/smallbiznis/servicehub/internal/subscription"
	"go.uber.org/fx"
)

func main() {
	// The backend has to be known before the graph is built.
	cfg := config.Load()

	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		storage.Module(cfg.DBType),
		clock.Module,
		ratelimit.Module,

		// Functional Domains
		catalog.Module,
		subscription.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
