package referral

import (
	"github.com/groundswell-app/groundswell/internal/referral/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(service.New),
)
