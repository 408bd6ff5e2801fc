package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Status is a member's lifecycle state. Members are never physically removed;
// deletion sets DeletedAt and status "deleted".
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

type Member struct {
	ID               snowflake.ID   `gorm:"primaryKey" json:"id"`
	FullName         string         `gorm:"not null" json:"full_name"`
	Email            string         `gorm:"not null" json:"email"`
	Phone            string         `gorm:"not null;default:''" json:"phone,omitempty"`
	Status           Status         `gorm:"type:text;not null;default:'pending'" json:"status"`
	ReferralCodeUsed string         `gorm:"not null;default:''" json:"referral_code_used,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "members" }

var (
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidEmail      = errors.New("invalid_email")
	ErrInvalidID         = errors.New("invalid_id")
	ErrEmailExists       = errors.New("email_exists")
	ErrNotFound          = errors.New("not_found")
	ErrInvalidTransition = errors.New("invalid_status_transition")
)
