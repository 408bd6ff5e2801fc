package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/groundswell-app/groundswell/internal/config"
	ledgerdomain "github.com/groundswell-app/groundswell/internal/ledger/domain"
	ledgersvc "github.com/groundswell-app/groundswell/internal/ledger/service"
	"github.com/groundswell-app/groundswell/internal/referral/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestReferral(t *testing.T) (*gorm.DB, domain.Service, ledgerdomain.Service, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	db.Exec(`CREATE TABLE IF NOT EXISTS referral_codes (
		id BIGINT PRIMARY KEY,
		member_id BIGINT NOT NULL UNIQUE,
		code TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	)`)
	db.Exec(`CREATE TABLE IF NOT EXISTS referrals (
		id BIGINT PRIMARY KEY,
		referrer_id BIGINT NOT NULL,
		referred_id BIGINT NOT NULL UNIQUE,
		code TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
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

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	ledger := ledgersvc.NewService(ledgersvc.Params{DB: db, Log: log, GenID: node})
	svc := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Config:    config.Config{Rewards: config.RewardsConfig{ReferralBonusPoints: 100}},
		LedgerSvc: ledger,
	})
	return db, svc, ledger, node
}

func TestGetOrCreateCodeIdempotent(t *testing.T) {
	_, svc, _, node := newTestReferral(t)
	ctx := context.Background()
	member := node.Generate()

	first, err := svc.GetOrCreateCode(ctx, domain.GetOrCreateCodeRequest{MemberID: member.String()})
	require.NoError(t, err)
	assert.Equal(t, member, first.MemberID)
	assert.NotEmpty(t, first.Code)

	second, err := svc.GetOrCreateCode(ctx, domain.GetOrCreateCodeRequest{MemberID: member.String()})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Code, second.Code)

	_, err = svc.GetOrCreateCode(ctx, domain.GetOrCreateCodeRequest{MemberID: "not-a-number"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestRecordReferralCreditsReferrerOnce(t *testing.T) {
	_, svc, ledger, node := newTestReferral(t)
	ctx := context.Background()
	referrer := node.Generate()
	referred := node.Generate()

	code, err := svc.GetOrCreateCode(ctx, domain.GetOrCreateCodeRequest{MemberID: referrer.String()})
	require.NoError(t, err)

	referral, err := svc.RecordReferral(ctx, domain.RecordReferralRequest{
		Code:             code.Code,
		ReferredMemberID: referred,
	})
	require.NoError(t, err)
	assert.Equal(t, referrer, referral.ReferrerID)
	assert.Equal(t, referred, referral.ReferredID)

	balance, err := ledger.Balance(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	// A second attempt for the same referred member credits nothing.
	_, err = svc.RecordReferral(ctx, domain.RecordReferralRequest{
		Code:             code.Code,
		ReferredMemberID: referred,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyReferred)

	balance, err = ledger.Balance(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestRecordReferralRejectsUnknownAndSelf(t *testing.T) {
	_, svc, ledger, node := newTestReferral(t)
	ctx := context.Background()
	referrer := node.Generate()

	code, err := svc.GetOrCreateCode(ctx, domain.GetOrCreateCodeRequest{MemberID: referrer.String()})
	require.NoError(t, err)

	_, err = svc.RecordReferral(ctx, domain.RecordReferralRequest{
		Code:             "GS-NOSUCHCODE",
		ReferredMemberID: node.Generate(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidReferral)

	_, err = svc.RecordReferral(ctx, domain.RecordReferralRequest{
		Code:             code.Code,
		ReferredMemberID: referrer,
	})
	assert.ErrorIs(t, err, domain.ErrSelfReferral)

	balance, err := ledger.Balance(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestListByReferrer(t *testing.T) {
	_, svc, _, node := newTestReferral(t)
	ctx := context.Background()
	referrer := node.Generate()

	code, err := svc.GetOrCreateCode(ctx, domain.GetOrCreateCodeRequest{MemberID: referrer.String()})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.RecordReferral(ctx, domain.RecordReferralRequest{
			Code:             code.Code,
			ReferredMemberID: node.Generate(),
		})
		require.NoError(t, err)
	}

	referrals, err := svc.ListByReferrer(ctx, referrer.String())
	require.NoError(t, err)
	assert.Len(t, referrals, 3)
}
