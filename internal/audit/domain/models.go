package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeMember ActorType = "member"
	ActorTypeSystem ActorType = "system"
)

// AuditLog is an append-only record of a sensitive action, kept for manual
// fraud review. Client capture fields are best-effort and may be empty.
type AuditLog struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType   string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID     string            `gorm:"type:text;not null;default:''" json:"actor_id"`
	Action      string            `gorm:"type:text;not null" json:"action"`
	TargetType  string            `gorm:"type:text;not null" json:"target_type"`
	TargetID    string            `gorm:"type:text;not null;default:''" json:"target_id"`
	IPAddress   string            `gorm:"type:text;not null;default:''" json:"ip_address,omitempty"`
	UserAgent   string            `gorm:"type:text;not null;default:''" json:"user_agent,omitempty"`
	Fingerprint string            `gorm:"type:text;not null;default:''" json:"fingerprint,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

type Service interface {
	AuditLog(ctx context.Context, actorType ActorType, actorID, action, targetType, targetID string, metadata map[string]any) error
}
