package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/groundswell-app/groundswell/pkg/db/pagination"
	"gorm.io/gorm"
)

// EntryRequest describes one credit or debit to append.
type EntryRequest struct {
	MemberID    snowflake.ID
	Amount      int64
	Source      Source
	TxnType     TransactionType
	ReferenceID *snowflake.ID
}

type HistoryRequest struct {
	MemberID  string
	PageToken string
	PageSize  int32
}

type HistoryResponse struct {
	pagination.PageInfo
	Transactions []PointsTransaction `json:"transactions"`
}

// VerifyResult reports whether a member's snapshots match a full replay.
type VerifyResult struct {
	MemberID         snowflake.ID `json:"member_id"`
	TransactionCount int          `json:"transaction_count"`
	ComputedBalance  int64        `json:"computed_balance"`
	SnapshotBalance  int64        `json:"snapshot_balance"`
	Consistent       bool         `json:"consistent"`
	FirstDriftID     snowflake.ID `json:"first_drift_id,omitempty"`
}

// Service is the points ledger. CreditTx/DebitTx append inside the caller's
// transaction so an action insert and its reward land atomically; Credit/Debit
// open their own transaction.
type Service interface {
	Credit(ctx context.Context, req EntryRequest) (PointsTransaction, error)
	Debit(ctx context.Context, req EntryRequest) (PointsTransaction, error)
	CreditTx(ctx context.Context, tx *gorm.DB, req EntryRequest) (PointsTransaction, error)
	DebitTx(ctx context.Context, tx *gorm.DB, req EntryRequest) (PointsTransaction, error)
	Balance(ctx context.Context, memberID snowflake.ID) (int64, error)
	History(ctx context.Context, req HistoryRequest) (HistoryResponse, error)
	VerifyBalance(ctx context.Context, memberID snowflake.ID) (VerifyResult, error)
}
