package topup

import (
	"github.com/groundswell-app/groundswell/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.topup",
	fx.Provide(NewProvider),
)

// NewProvider selects the configured topup backend.
func NewProvider(cfg config.Config, log *zap.Logger) Provider {
	switch cfg.Topup.Provider {
	case "mtn":
		return NewMTN(cfg.Topup, log)
	default:
		if cfg.Topup.Provider != "sandbox" {
			log.Warn("unknown topup provider, using sandbox",
				zap.String("provider", cfg.Topup.Provider),
			)
		}
		return NewSandbox()
	}
}
