package subscription

import (
	"github.com/smallbiznis/servicehub/internal/subscription/service"
	"go.uber.org/fx"
)

// Module provides the subscription service. Repositories and the transaction
// manager come from the storage module.
var Module = fx.Module("subscription.service",
	fx.Provide(service.NewService),
)
