package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/groundswell-app/groundswell/internal/ledger/domain"
	obsmetrics "github.com/groundswell-app/groundswell/internal/observability/metrics"
	"github.com/groundswell-app/groundswell/pkg/db/option"
	"github.com/groundswell-app/groundswell/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Credit(ctx context.Context, req domain.EntryRequest) (domain.PointsTransaction, error) {
	var txn domain.PointsTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var innerErr error
		txn, innerErr = s.CreditTx(ctx, tx, req)
		return innerErr
	})
	return txn, err
}

func (s *Service) Debit(ctx context.Context, req domain.EntryRequest) (domain.PointsTransaction, error) {
	var txn domain.PointsTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var innerErr error
		txn, innerErr = s.DebitTx(ctx, tx, req)
		return innerErr
	})
	return txn, err
}

// CreditTx appends a positive transaction inside the caller's transaction.
func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, req domain.EntryRequest) (domain.PointsTransaction, error) {
	txnType := req.TxnType
	if txnType == "" {
		txnType = domain.TransactionTypeEarn
	}
	return s.append(ctx, tx, req, txnType, req.Amount)
}

// DebitTx appends a negative transaction inside the caller's transaction.
// It fails with ErrInsufficientBalance before writing anything when the
// member's balance does not cover the amount.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, req domain.EntryRequest) (domain.PointsTransaction, error) {
	txnType := req.TxnType
	if txnType == "" {
		txnType = domain.TransactionTypeSpend
	}
	return s.append(ctx, tx, req, txnType, -req.Amount)
}

func (s *Service) append(ctx context.Context, tx *gorm.DB, req domain.EntryRequest, txnType domain.TransactionType, signed int64) (domain.PointsTransaction, error) {
	if req.MemberID == 0 {
		return domain.PointsTransaction{}, domain.ErrInvalidMember
	}
	if req.Amount <= 0 {
		return domain.PointsTransaction{}, domain.ErrInvalidAmount
	}
	if req.Source == "" {
		return domain.PointsTransaction{}, domain.ErrInvalidSource
	}

	previous, err := s.latestBalance(ctx, tx, req.MemberID, true)
	if err != nil {
		return domain.PointsTransaction{}, err
	}

	balance := previous + signed
	if balance < 0 {
		return domain.PointsTransaction{}, domain.ErrInsufficientBalance
	}

	txn := domain.PointsTransaction{
		ID:           s.genID.Generate(),
		MemberID:     req.MemberID,
		TxnType:      txnType,
		Source:       req.Source,
		Amount:       signed,
		BalanceAfter: balance,
		ReferenceID:  req.ReferenceID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&txn).Error; err != nil {
		return domain.PointsTransaction{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordPointsTransaction(ctx, string(txnType), string(req.Source))
	}

	return txn, nil
}

func (s *Service) Balance(ctx context.Context, memberID snowflake.ID) (int64, error) {
	if memberID == 0 {
		return 0, domain.ErrInvalidMember
	}
	return s.latestBalance(ctx, s.db, memberID, false)
}

// latestBalance reads the newest snapshot for the member. Inside a write
// transaction the row is locked so concurrent appends serialize per member;
// sqlite has no row locks and relies on its single-writer model instead.
func (s *Service) latestBalance(ctx context.Context, tx *gorm.DB, memberID snowflake.ID, forUpdate bool) (int64, error) {
	stmt := tx.WithContext(ctx).
		Model(&domain.PointsTransaction{}).
		Where("member_id = ?", memberID).
		Order("id DESC").
		Limit(1)
	if forUpdate && supportsRowLock(tx) {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var last domain.PointsTransaction
	err := stmt.Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last.BalanceAfter, nil
}

func (s *Service) History(ctx context.Context, req domain.HistoryRequest) (domain.HistoryResponse, error) {
	memberID, err := snowflake.ParseString(req.MemberID)
	if err != nil || memberID == 0 {
		return domain.HistoryResponse{}, domain.ErrInvalidMember
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var items []*domain.PointsTransaction
	stmt := s.db.WithContext(ctx).
		Model(&domain.PointsTransaction{}).
		Where("member_id = ?", memberID)
	stmt = option.ApplyPagination(pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	}).Apply(stmt)
	if err := stmt.Order("id desc").Find(&items).Error; err != nil {
		return domain.HistoryResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(txn *domain.PointsTransaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        txn.ID.String(),
			CreatedAt: txn.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	transactions := make([]domain.PointsTransaction, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		transactions = append(transactions, *item)
	}

	resp := domain.HistoryResponse{Transactions: transactions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// VerifyBalance replays every transaction for the member in creation order and
// checks each snapshot against the running sum. The snapshot column is a cache
// of this replay, not the authority.
func (s *Service) VerifyBalance(ctx context.Context, memberID snowflake.ID) (domain.VerifyResult, error) {
	if memberID == 0 {
		return domain.VerifyResult{}, domain.ErrInvalidMember
	}

	var txns []domain.PointsTransaction
	if err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("id ASC").
		Find(&txns).Error; err != nil {
		return domain.VerifyResult{}, err
	}

	result := domain.VerifyResult{
		MemberID:         memberID,
		TransactionCount: len(txns),
		Consistent:       true,
	}

	var running int64
	for _, txn := range txns {
		running += txn.Amount
		if running != txn.BalanceAfter && result.Consistent {
			result.Consistent = false
			result.FirstDriftID = txn.ID
		}
		result.SnapshotBalance = txn.BalanceAfter
	}
	result.ComputedBalance = running

	if !result.Consistent {
		s.log.Error("ledger snapshot drift detected",
			zap.String("member_id", memberID.String()),
			zap.Int64("computed", result.ComputedBalance),
			zap.Int64("snapshot", result.SnapshotBalance),
			zap.String("first_drift_id", result.FirstDriftID.String()),
		)
	}

	return result, nil
}

func supportsRowLock(tx *gorm.DB) bool {
	if tx == nil || tx.Dialector == nil {
		return false
	}
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}
