package catalog

import (
	"github.com/smallbiznis/servicehub/internal/catalog/service"
	"go.uber.org/fx"
)

// Module provides the catalog service. The repository comes from the storage module.
var Module = fx.Module("catalog.service",
	fx.Provide(service.NewService),
)
