package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/groundswell-app/groundswell/internal/audit/domain"
	obscontext "github.com/groundswell-app/groundswell/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
	}
}

// AuditLog writes one audit row. Failures are logged, never propagated:
// an audit miss must not fail the action being audited.
func (s *Service) AuditLog(ctx context.Context, actorType domain.ActorType, actorID, action, targetType, targetID string, metadata map[string]any) error {
	row := domain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(actorType),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   datatypes.JSONMap(metadata),
		CreatedAt:  time.Now().UTC(),
	}
	if row.Metadata == nil {
		row.Metadata = datatypes.JSONMap{}
	}

	if meta, ok := obscontext.ClientMetaFromContext(ctx); ok {
		row.IPAddress = meta.IPAddress
		row.UserAgent = meta.UserAgent
		row.Fingerprint = meta.Fingerprint
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("target_type", targetType),
			zap.Error(err),
		)
		return err
	}
	return nil
}
