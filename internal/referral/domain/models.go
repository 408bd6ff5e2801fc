package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ReferralCode is one member's shareable code, generated lazily and immutable
// once created.
type ReferralCode struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	MemberID  snowflake.ID `gorm:"not null;uniqueIndex:ux_referral_codes_member" json:"member_id"`
	Code      string       `gorm:"not null;uniqueIndex:ux_referral_codes_code" json:"code"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ReferralCode) TableName() string { return "referral_codes" }

// Referral links a referrer to the member they brought in. The unique index on
// ReferredID means the bonus attached to this row can only ever be paid once.
type Referral struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ReferrerID snowflake.ID `gorm:"not null;index" json:"referrer_id"`
	ReferredID snowflake.ID `gorm:"not null;uniqueIndex:ux_referrals_referred" json:"referred_id"`
	Code       string       `gorm:"not null" json:"code"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Referral) TableName() string { return "referrals" }

var (
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidReferral = errors.New("invalid_referral")
	ErrSelfReferral    = errors.New("self_referral")
	ErrAlreadyReferred = errors.New("already_referred")
)

type GetOrCreateCodeRequest struct {
	MemberID string
}

type RecordReferralRequest struct {
	Code             string
	ReferredMemberID snowflake.ID
}

// Service issues referral codes and pays the referrer bonus.
//
// GetOrCreateCode is idempotent: the first call creates the code, every later
// call returns the same one. RecordReferralTx creates the referral link and
// credits the referrer inside the caller's transaction; the second call for
// the same referred member fails with ErrAlreadyReferred and credits nothing.
type Service interface {
	GetOrCreateCode(ctx context.Context, req GetOrCreateCodeRequest) (ReferralCode, error)
	RecordReferral(ctx context.Context, req RecordReferralRequest) (Referral, error)
	RecordReferralTx(ctx context.Context, tx *gorm.DB, req RecordReferralRequest) (Referral, error)
	ListByReferrer(ctx context.Context, memberID string) ([]Referral, error)
}
