package migration

import (
	"github.com/smallbiznis/servicehub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, models Models, log *zap.Logger) error {
		return Apply(conn, cfg.DBType, models, log)
	}),
)
