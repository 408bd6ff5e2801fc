package action

import (
	"github.com/groundswell-app/groundswell/internal/action/service"
	"go.uber.org/fx"
)

var Module = fx.Module("action.service",
	fx.Provide(service.New),
)
