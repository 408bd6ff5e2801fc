package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/groundswell-app/groundswell/internal/providers/topup"
)

// Product is what a redemption buys.
type Product string

const (
	ProductAirtime Product = "airtime"
	ProductData    Product = "data"
)

// Status tracks a redemption through its lifecycle. pending is the only
// non-terminal state; transitions out of it are guarded UPDATEs so each
// redemption resolves exactly once.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Redemption is one points-for-topup exchange. Points are debited when the row
// is created; a failed delivery refunds them through a compensating credit,
// never by deleting ledger rows.
type Redemption struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	MemberID      snowflake.ID `gorm:"not null;index:ix_redemptions_member,priority:1" json:"member_id"`
	Product       Product      `gorm:"type:text;not null" json:"product"`
	Points        int64        `gorm:"not null" json:"points"`
	MSISDN        string       `gorm:"column:msisdn;not null" json:"msisdn"`
	Status        Status       `gorm:"type:text;not null;default:'pending'" json:"status"`
	Provider      string       `gorm:"not null" json:"provider"`
	Reference     string       `gorm:"not null;uniqueIndex:ux_redemptions_reference" json:"reference"`
	ProviderRef   string       `gorm:"not null;default:''" json:"provider_ref,omitempty"`
	Attempts      int          `gorm:"not null;default:0" json:"attempts"`
	FailureReason string       `gorm:"not null;default:''" json:"failure_reason,omitempty"`
	RefundedAt    *time.Time   `json:"refunded_at,omitempty"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Redemption) TableName() string { return "redemptions" }

var (
	ErrInvalidMember  = errors.New("invalid_member")
	ErrInvalidProduct = errors.New("invalid_product")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidMSISDN  = errors.New("invalid_msisdn")
	ErrNotFound       = errors.New("redemption_not_found")
)

type InitiateRequest struct {
	MemberID snowflake.ID
	Product  Product
	Points   int64
	MSISDN   string
}

type GetRequest struct {
	ID string
}

type ListRequest struct {
	MemberID  string
	Status    string
	PageToken string
	PageSize  int32
}

type ListResponse struct {
	Redemptions   []Redemption
	NextPageToken string
	HasMore       bool
}

// Service exchanges points for airtime or data. Initiate debits first, then
// delivers; a delivery that ultimately fails is compensated with a refund
// credit exactly once. HandleCallback applies a provider's asynchronous status
// notification; replays are no-ops. Reconcile expires stale pending rows so
// points are never stranded.
type Service interface {
	Initiate(ctx context.Context, req InitiateRequest) (Redemption, error)
	Get(ctx context.Context, req GetRequest) (Redemption, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	HandleCallback(ctx context.Context, event topup.CallbackEvent) (Redemption, error)
	Reconcile(ctx context.Context, olderThan time.Duration) (int, error)
}
