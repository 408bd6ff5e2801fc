package member

import (
	"github.com/groundswell-app/groundswell/internal/member/repository"
	"github.com/groundswell-app/groundswell/internal/member/service"
	"go.uber.org/fx"
)

var Module = fx.Module("member.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
