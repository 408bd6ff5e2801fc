package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/groundswell-app/groundswell/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) (*gorm.DB, domain.Service, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	db.Exec(`CREATE TABLE IF NOT EXISTS points_transactions (
		id BIGINT PRIMARY KEY,
		member_id BIGINT NOT NULL,
		txn_type TEXT NOT NULL,
		source TEXT NOT NULL,
		amount BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		reference_id BIGINT,
		created_at TIMESTAMP NOT NULL
	)`)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
	})
	return db, svc, node
}

func TestCreditDebitBalanceChain(t *testing.T) {
	_, svc, node := newTestLedger(t)
	ctx := context.Background()
	member := node.Generate()

	txn, err := svc.Credit(ctx, domain.EntryRequest{MemberID: member, Amount: 50, Source: domain.SourceQuiz})
	require.NoError(t, err)
	assert.Equal(t, int64(50), txn.Amount)
	assert.Equal(t, int64(50), txn.BalanceAfter)
	assert.Equal(t, domain.TransactionTypeEarn, txn.TxnType)

	txn, err = svc.Credit(ctx, domain.EntryRequest{MemberID: member, Amount: 30, Source: domain.SourceTask})
	require.NoError(t, err)
	assert.Equal(t, int64(80), txn.BalanceAfter)

	txn, err = svc.Debit(ctx, domain.EntryRequest{MemberID: member, Amount: 60, Source: domain.SourceRedemption})
	require.NoError(t, err)
	assert.Equal(t, int64(-60), txn.Amount)
	assert.Equal(t, int64(20), txn.BalanceAfter)
	assert.Equal(t, domain.TransactionTypeSpend, txn.TxnType)

	balance, err := svc.Balance(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)
}

func TestDebitInsufficientBalance(t *testing.T) {
	db, svc, node := newTestLedger(t)
	ctx := context.Background()
	member := node.Generate()

	_, err := svc.Credit(ctx, domain.EntryRequest{MemberID: member, Amount: 10, Source: domain.SourceEvent})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, domain.EntryRequest{MemberID: member, Amount: 11, Source: domain.SourceRedemption})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// No transaction may be written by a rejected debit.
	var count int64
	db.Model(&domain.PointsTransaction{}).Where("member_id = ?", member).Count(&count)
	assert.Equal(t, int64(1), count)

	balance, err := svc.Balance(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestDebitEmptyMemberFails(t *testing.T) {
	_, svc, node := newTestLedger(t)
	ctx := context.Background()

	_, err := svc.Debit(ctx, domain.EntryRequest{MemberID: node.Generate(), Amount: 5, Source: domain.SourceRedemption})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = svc.Credit(ctx, domain.EntryRequest{MemberID: 0, Amount: 5, Source: domain.SourceQuiz})
	assert.ErrorIs(t, err, domain.ErrInvalidMember)

	_, err = svc.Credit(ctx, domain.EntryRequest{MemberID: node.Generate(), Amount: 0, Source: domain.SourceQuiz})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Credit(ctx, domain.EntryRequest{MemberID: node.Generate(), Amount: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidSource)
}

func TestVerifyBalanceReplay(t *testing.T) {
	db, svc, node := newTestLedger(t)
	ctx := context.Background()
	member := node.Generate()

	_, err := svc.Credit(ctx, domain.EntryRequest{MemberID: member, Amount: 100, Source: domain.SourceReferral})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, domain.EntryRequest{MemberID: member, Amount: 40, Source: domain.SourceRedemption})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, domain.EntryRequest{MemberID: member, Amount: 40, Source: domain.SourceRedemptionRefund})
	require.NoError(t, err)

	result, err := svc.VerifyBalance(ctx, member)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
	assert.Equal(t, 3, result.TransactionCount)
	assert.Equal(t, int64(100), result.ComputedBalance)
	assert.Equal(t, result.ComputedBalance, result.SnapshotBalance)

	// Corrupt one snapshot out-of-band; the replay must notice.
	db.Exec(`UPDATE points_transactions SET balance_after = balance_after + 7
		WHERE member_id = ? AND amount = -40`, member)

	result, err = svc.VerifyBalance(ctx, member)
	require.NoError(t, err)
	assert.False(t, result.Consistent)
	assert.NotZero(t, result.FirstDriftID)
}

func TestHistoryPagination(t *testing.T) {
	_, svc, node := newTestLedger(t)
	ctx := context.Background()
	member := node.Generate()

	for i := 0; i < 5; i++ {
		_, err := svc.Credit(ctx, domain.EntryRequest{MemberID: member, Amount: 10, Source: domain.SourceShare})
		require.NoError(t, err)
	}

	resp, err := svc.History(ctx, domain.HistoryRequest{MemberID: member.String(), PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Transactions, 2)
	assert.True(t, resp.HasMore)
	assert.NotEmpty(t, resp.NextPageToken)

	// Newest first, snapshots descending.
	assert.Greater(t, resp.Transactions[0].BalanceAfter, resp.Transactions[1].BalanceAfter)

	resp, err = svc.History(ctx, domain.HistoryRequest{
		MemberID:  member.String(),
		PageSize:  10,
		PageToken: resp.NextPageToken,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Transactions, 3)
	assert.False(t, resp.HasMore)
}
