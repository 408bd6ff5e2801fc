package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionType classifies a ledger movement.
type TransactionType string

const (
	TransactionTypeEarn     TransactionType = "earn"
	TransactionTypeSpend    TransactionType = "spend"
	TransactionTypePurchase TransactionType = "purchase"
	TransactionTypeTransfer TransactionType = "transfer"
)

// Source tags where a transaction came from.
type Source string

const (
	SourceQuiz             Source = "quiz"
	SourceTask             Source = "task"
	SourceCampaign         Source = "campaign"
	SourceEvent            Source = "event"
	SourceShare            Source = "share"
	SourceReferral         Source = "referral"
	SourcePurchase         Source = "purchase"
	SourceRedemption       Source = "redemption"
	SourceRedemptionRefund Source = "redemption_refund"
	SourceAdjustment       Source = "adjustment"
)

// PointsTransaction is an immutable, append-only ledger row. BalanceAfter is a
// snapshot of the running balance; replaying all rows for a member in id order
// must reproduce it. Corrections are new offsetting rows, never updates.
type PointsTransaction struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	MemberID     snowflake.ID    `gorm:"not null;index:ix_points_transactions_member,priority:1" json:"member_id"`
	TxnType      TransactionType `gorm:"column:txn_type;type:text;not null" json:"txn_type"`
	Source       Source          `gorm:"type:text;not null" json:"source"`
	Amount       int64           `gorm:"not null" json:"amount"`
	BalanceAfter int64           `gorm:"not null" json:"balance_after"`
	ReferenceID  *snowflake.ID   `gorm:"" json:"reference_id,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (PointsTransaction) TableName() string { return "points_transactions" }

var (
	ErrInvalidMember       = errors.New("invalid_member")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidSource       = errors.New("invalid_source")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrLedgerDrift         = errors.New("ledger_drift")
)
