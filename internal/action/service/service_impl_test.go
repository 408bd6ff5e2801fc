package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/groundswell-app/groundswell/internal/action/domain"
	"github.com/groundswell-app/groundswell/internal/config"
	ledgerdomain "github.com/groundswell-app/groundswell/internal/ledger/domain"
	ledgersvc "github.com/groundswell-app/groundswell/internal/ledger/service"
	obscontext "github.com/groundswell-app/groundswell/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestAction(t *testing.T) (*gorm.DB, domain.Service, ledgerdomain.Service, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	db.Exec(`CREATE TABLE IF NOT EXISTS rewardable_actions (
		id BIGINT PRIMARY KEY,
		member_id BIGINT NOT NULL,
		action_type TEXT NOT NULL,
		target_id BIGINT NOT NULL,
		subtype TEXT NOT NULL DEFAULT '',
		correct BOOLEAN NOT NULL DEFAULT TRUE,
		points BIGINT NOT NULL DEFAULT 0,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL DEFAULT '',
		completion_ms BIGINT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		UNIQUE (member_id, action_type, target_id, subtype)
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

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	ledger := ledgersvc.NewService(ledgersvc.Params{DB: db, Log: log, GenID: node})
	svc := New(Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Config: config.Config{Rewards: config.RewardsConfig{
			QuizPoints:            50,
			TaskMicroPoints:       20,
			TaskVolunteerPoints:   75,
			CampaignVotePoints:    10,
			EventAttendancePoints: 30,
			SharePoints:           5,
		}},
		LedgerSvc: ledger,
	})
	return db, svc, ledger, node
}

func boolPtr(v bool) *bool { return &v }

func TestRecordQuizCreditsOnce(t *testing.T) {
	_, svc, ledger, node := newTestAction(t)
	ctx := context.Background()
	member := node.Generate()
	quiz := node.Generate()

	resp, err := svc.Record(ctx, domain.RecordActionRequest{
		MemberID:   member,
		ActionType: domain.ActionQuizAttempt,
		TargetID:   quiz,
		Correct:    boolPtr(true),
	})
	require.NoError(t, err)
	assert.True(t, resp.Credited)
	require.NotNil(t, resp.Transaction)
	assert.Equal(t, int64(50), resp.Transaction.Amount)
	assert.Equal(t, ledgerdomain.SourceQuiz, resp.Transaction.Source)

	// Resubmitting the same quiz is rejected and the balance is untouched.
	_, err = svc.Record(ctx, domain.RecordActionRequest{
		MemberID:   member,
		ActionType: domain.ActionQuizAttempt,
		TargetID:   quiz,
		Correct:    boolPtr(true),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateAction)

	balance, err := ledger.Balance(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
}

func TestRecordIncorrectQuizConsumesSlot(t *testing.T) {
	_, svc, ledger, node := newTestAction(t)
	ctx := context.Background()
	member := node.Generate()
	quiz := node.Generate()

	resp, err := svc.Record(ctx, domain.RecordActionRequest{
		MemberID:   member,
		ActionType: domain.ActionQuizAttempt,
		TargetID:   quiz,
		Correct:    boolPtr(false),
	})
	require.NoError(t, err)
	assert.False(t, resp.Credited)
	assert.Nil(t, resp.Transaction)
	assert.False(t, resp.Action.Correct)
	assert.Zero(t, resp.Action.Points)

	balance, err := ledger.Balance(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// The wrong answer still used up the one attempt.
	_, err = svc.Record(ctx, domain.RecordActionRequest{
		MemberID:   member,
		ActionType: domain.ActionQuizAttempt,
		TargetID:   quiz,
		Correct:    boolPtr(true),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateAction)
}

func TestRecordTaskSubtypes(t *testing.T) {
	_, svc, ledger, node := newTestAction(t)
	ctx := context.Background()
	member := node.Generate()
	task := node.Generate()

	resp, err := svc.Record(ctx, domain.RecordActionRequest{
		MemberID:   member,
		ActionType: domain.ActionTaskCompletion,
		TargetID:   task,
		Subtype:    domain.SubtypeTaskMicro,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20), resp.Transaction.Amount)

	// A different subtype against the same target is a distinct slot.
	resp, err = svc.Record(ctx, domain.RecordActionRequest{
		MemberID:   member,
		ActionType: domain.ActionTaskCompletion,
		TargetID:   task,
		Subtype:    domain.SubtypeTaskVolunteer,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(75), resp.Transaction.Amount)

	_, err = svc.Record(ctx, domain.RecordActionRequest{
		MemberID:   member,
		ActionType: domain.ActionTaskCompletion,
		TargetID:   task,
		Subtype:    "weekend",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSubtype)

	balance, err := ledger.Balance(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(95), balance)
}

func TestRecordPointsOverride(t *testing.T) {
	_, svc, _, node := newTestAction(t)
	ctx := context.Background()

	resp, err := svc.Record(ctx, domain.RecordActionRequest{
		MemberID:   node.Generate(),
		ActionType: domain.ActionQuizAttempt,
		TargetID:   node.Generate(),
		Points:     120,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(120), resp.Transaction.Amount)
}

func TestRecordCapturesClientMeta(t *testing.T) {
	_, svc, _, node := newTestAction(t)
	ctx := obscontext.WithClientMeta(context.Background(), obscontext.ClientMeta{
		IPAddress:   "203.0.113.7",
		UserAgent:   "test-agent",
		Fingerprint: "fp-1",
	})

	resp, err := svc.Record(ctx, domain.RecordActionRequest{
		MemberID:   node.Generate(),
		ActionType: domain.ActionEventAttendance,
		TargetID:   node.Generate(),
	})
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", resp.Action.IPAddress)
	assert.Equal(t, "test-agent", resp.Action.UserAgent)
	assert.Equal(t, "fp-1", resp.Action.Fingerprint)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	_, svc, _, node := newTestAction(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, domain.RecordActionRequest{ActionType: domain.ActionShare, TargetID: node.Generate()})
	assert.ErrorIs(t, err, domain.ErrInvalidMember)

	_, err = svc.Record(ctx, domain.RecordActionRequest{MemberID: node.Generate(), ActionType: domain.ActionShare})
	assert.ErrorIs(t, err, domain.ErrInvalidTarget)

	_, err = svc.Record(ctx, domain.RecordActionRequest{MemberID: node.Generate(), ActionType: "login", TargetID: node.Generate()})
	assert.ErrorIs(t, err, domain.ErrInvalidType)
}

func TestListActionsByMember(t *testing.T) {
	_, svc, _, node := newTestAction(t)
	ctx := context.Background()
	member := node.Generate()

	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, domain.RecordActionRequest{
			MemberID:   member,
			ActionType: domain.ActionCampaignVote,
			TargetID:   node.Generate(),
		})
		require.NoError(t, err)
	}
	_, err := svc.Record(ctx, domain.RecordActionRequest{
		MemberID:   member,
		ActionType: domain.ActionShare,
		TargetID:   node.Generate(),
	})
	require.NoError(t, err)

	resp, err := svc.List(ctx, domain.ListActionRequest{MemberID: member.String(), PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, resp.Actions, 4)

	resp, err = svc.List(ctx, domain.ListActionRequest{
		MemberID:   member.String(),
		ActionType: string(domain.ActionCampaignVote),
		PageSize:   2,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Actions, 2)
	assert.True(t, resp.HasMore)
}
