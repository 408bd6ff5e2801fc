package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/groundswell-app/groundswell/internal/clock"
	"github.com/groundswell-app/groundswell/internal/config"
	ledgerdomain "github.com/groundswell-app/groundswell/internal/ledger/domain"
	ledgersvc "github.com/groundswell-app/groundswell/internal/ledger/service"
	"github.com/groundswell-app/groundswell/internal/providers/topup"
	"github.com/groundswell-app/groundswell/internal/redemption/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// scriptedProvider returns canned responses so tests can drive every branch of
// the delivery loop.
type scriptedProvider struct {
	purchaseResults []topup.PurchaseResult
	purchaseErrs    []error
	purchaseCalls   int

	statusResult topup.PurchaseResult
	statusErr    error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Purchase(ctx context.Context, req topup.PurchaseRequest) (topup.PurchaseResult, error) {
	i := p.purchaseCalls
	p.purchaseCalls++
	if i >= len(p.purchaseErrs) {
		i = len(p.purchaseErrs) - 1
	}
	if i < 0 {
		return topup.PurchaseResult{Status: topup.StatusDelivered}, nil
	}
	return p.purchaseResults[i], p.purchaseErrs[i]
}

func (p *scriptedProvider) Status(ctx context.Context, reference string) (topup.PurchaseResult, error) {
	return p.statusResult, p.statusErr
}

func newTestRedemption(t *testing.T, provider topup.Provider) (*gorm.DB, domain.Service, ledgerdomain.Service, *snowflake.Node, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	db.Exec(`CREATE TABLE IF NOT EXISTS redemptions (
		id BIGINT PRIMARY KEY,
		member_id BIGINT NOT NULL,
		product TEXT NOT NULL,
		points BIGINT NOT NULL,
		msisdn TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		provider TEXT NOT NULL,
		reference TEXT NOT NULL UNIQUE,
		provider_ref TEXT NOT NULL DEFAULT '',
		attempts INT NOT NULL DEFAULT 0,
		failure_reason TEXT NOT NULL DEFAULT '',
		refunded_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
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

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ledger := ledgersvc.NewService(ledgersvc.Params{DB: db, Log: log, GenID: node})
	svc := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fakeClock,
		Config:    config.Config{Topup: config.TopupConfig{MaxAttempts: 3}},
		LedgerSvc: ledger,
		Provider:  provider,
	})
	return db, svc, ledger, node, fakeClock
}

func fund(t *testing.T, ledger ledgerdomain.Service, member snowflake.ID, amount int64) {
	t.Helper()
	_, err := ledger.Credit(context.Background(), ledgerdomain.EntryRequest{
		MemberID: member,
		Amount:   amount,
		Source:   ledgerdomain.SourceQuiz,
	})
	require.NoError(t, err)
}

func TestInitiateDelivers(t *testing.T) {
	provider := &scriptedProvider{
		purchaseResults: []topup.PurchaseResult{{ProviderRef: "mtn-1", Status: topup.StatusDelivered}},
		purchaseErrs:    []error{nil},
	}
	_, svc, ledger, node, _ := newTestRedemption(t, provider)
	ctx := context.Background()
	member := node.Generate()
	fund(t, ledger, member, 100)

	redemption, err := svc.Initiate(ctx, domain.InitiateRequest{
		MemberID: member,
		Product:  domain.ProductAirtime,
		Points:   60,
		MSISDN:   "2330244123456",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, redemption.Status)
	assert.Equal(t, "mtn-1", redemption.ProviderRef)
	assert.Equal(t, 1, redemption.Attempts)

	balance, err := ledger.Balance(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)
}

func TestInitiateInsufficientBalance(t *testing.T) {
	db, svc, ledger, node, _ := newTestRedemption(t, &scriptedProvider{})
	ctx := context.Background()
	member := node.Generate()
	fund(t, ledger, member, 30)

	_, err := svc.Initiate(ctx, domain.InitiateRequest{
		MemberID: member,
		Product:  domain.ProductData,
		Points:   50,
		MSISDN:   "2330244123456",
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientBalance)

	// The rejected debit rolls back the redemption row too.
	var count int64
	db.Model(&domain.Redemption{}).Where("member_id = ?", member).Count(&count)
	assert.Equal(t, int64(0), count)
}

// The core scenario: balance 50, redeem 50, provider keeps failing; the member
// ends back at 50 through one compensating credit, not at -50 or 0.
func TestInitiateProviderFailureRefundsOnce(t *testing.T) {
	failure := topup.ErrProviderFailure
	provider := &scriptedProvider{
		purchaseResults: []topup.PurchaseResult{{}, {}, {}},
		purchaseErrs:    []error{failure, failure, failure},
	}
	db, svc, ledger, node, _ := newTestRedemption(t, provider)
	ctx := context.Background()
	member := node.Generate()
	fund(t, ledger, member, 50)

	redemption, err := svc.Initiate(ctx, domain.InitiateRequest{
		MemberID: member,
		Product:  domain.ProductAirtime,
		Points:   50,
		MSISDN:   "2330244123456",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, redemption.Status)
	assert.Equal(t, 3, redemption.Attempts)
	assert.Equal(t, "provider_failure", redemption.FailureReason)
	assert.NotNil(t, redemption.RefundedAt)
	assert.Equal(t, 3, provider.purchaseCalls)

	balance, err := ledger.Balance(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	// Exactly one debit and one refund credit.
	var txns []ledgerdomain.PointsTransaction
	db.Where("member_id = ?", member).Order("id asc").Find(&txns)
	require.Len(t, txns, 3)
	assert.Equal(t, ledgerdomain.SourceRedemption, txns[1].Source)
	assert.Equal(t, ledgerdomain.SourceRedemptionRefund, txns[2].Source)
}

func TestInitiateTerminalRejectionSkipsRetries(t *testing.T) {
	provider := &scriptedProvider{
		purchaseResults: []topup.PurchaseResult{{}},
		purchaseErrs:    []error{topup.ErrProviderRejected},
	}
	_, svc, ledger, node, _ := newTestRedemption(t, provider)
	ctx := context.Background()
	member := node.Generate()
	fund(t, ledger, member, 80)

	redemption, err := svc.Initiate(ctx, domain.InitiateRequest{
		MemberID: member,
		Product:  domain.ProductData,
		Points:   80,
		MSISDN:   "2330244123456",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, redemption.Status)
	assert.Equal(t, "provider_rejected", redemption.FailureReason)
	assert.Equal(t, 1, provider.purchaseCalls)

	balance, err := ledger.Balance(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(80), balance)
}

func TestCallbackResolvesAcceptedAndIgnoresReplay(t *testing.T) {
	provider := &scriptedProvider{
		purchaseResults: []topup.PurchaseResult{{ProviderRef: "mtn-9", Status: topup.StatusAccepted}},
		purchaseErrs:    []error{nil},
	}
	_, svc, ledger, node, _ := newTestRedemption(t, provider)
	ctx := context.Background()
	member := node.Generate()
	fund(t, ledger, member, 100)

	redemption, err := svc.Initiate(ctx, domain.InitiateRequest{
		MemberID: member,
		Product:  domain.ProductAirtime,
		Points:   40,
		MSISDN:   "2330244123456",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, redemption.Status)
	assert.Equal(t, "mtn-9", redemption.ProviderRef)

	event := topup.CallbackEvent{Reference: redemption.Reference, Status: topup.StatusFailed, Reason: "subscriber_barred"}
	resolved, err := svc.HandleCallback(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, resolved.Status)

	balance, err := ledger.Balance(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	// Replaying the callback finds no pending row and refunds nothing.
	resolved, err = svc.HandleCallback(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, resolved.Status)

	balance, err = ledger.Balance(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	_, err = svc.HandleCallback(ctx, topup.CallbackEvent{Reference: "no-such-ref", Status: topup.StatusDelivered})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconcileExpiresStalePending(t *testing.T) {
	provider := &scriptedProvider{
		purchaseResults: []topup.PurchaseResult{{ProviderRef: "mtn-5", Status: topup.StatusAccepted}},
		purchaseErrs:    []error{nil},
		statusErr:       topup.ErrUnknownReference,
	}
	_, svc, ledger, node, fakeClock := newTestRedemption(t, provider)
	ctx := context.Background()
	member := node.Generate()
	fund(t, ledger, member, 70)

	redemption, err := svc.Initiate(ctx, domain.InitiateRequest{
		MemberID: member,
		Product:  domain.ProductData,
		Points:   70,
		MSISDN:   "2330244123456",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, redemption.Status)

	// Too young to reconcile.
	resolved, err := svc.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, resolved)

	fakeClock.Advance(2 * time.Hour)

	resolved, err = svc.Reconcile(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	reloaded, err := svc.Get(ctx, domain.GetRequest{ID: redemption.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, reloaded.Status)
	assert.Equal(t, "reconciled_stale", reloaded.FailureReason)

	balance, err := ledger.Balance(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)
}

func TestInitiateValidation(t *testing.T) {
	_, svc, _, node, _ := newTestRedemption(t, &scriptedProvider{})
	ctx := context.Background()

	_, err := svc.Initiate(ctx, domain.InitiateRequest{Product: domain.ProductAirtime, Points: 10, MSISDN: "2330244123456"})
	assert.ErrorIs(t, err, domain.ErrInvalidMember)

	_, err = svc.Initiate(ctx, domain.InitiateRequest{MemberID: node.Generate(), Product: "voucher", Points: 10, MSISDN: "2330244123456"})
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)

	_, err = svc.Initiate(ctx, domain.InitiateRequest{MemberID: node.Generate(), Product: domain.ProductData, Points: 0, MSISDN: "2330244123456"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Initiate(ctx, domain.InitiateRequest{MemberID: node.Generate(), Product: domain.ProductData, Points: 10, MSISDN: "123"})
	assert.ErrorIs(t, err, domain.ErrInvalidMSISDN)
}
