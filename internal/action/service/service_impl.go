package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/groundswell-app/groundswell/internal/action/domain"
	auditdomain "github.com/groundswell-app/groundswell/internal/audit/domain"
	"github.com/groundswell-app/groundswell/internal/config"
	ledgerdomain "github.com/groundswell-app/groundswell/internal/ledger/domain"
	obscontext "github.com/groundswell-app/groundswell/internal/observability/context"
	obsmetrics "github.com/groundswell-app/groundswell/internal/observability/metrics"
	"github.com/groundswell-app/groundswell/pkg/db"
	"github.com/groundswell-app/groundswell/pkg/db/option"
	"github.com/groundswell-app/groundswell/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Config     config.Config
	LedgerSvc  ledgerdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	rewards    config.RewardsConfig
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("action.service"),
		genID:      p.GenID,
		rewards:    p.Config.Rewards,
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// Record inserts the action row and, when it earns anything, the ledger credit
// in one transaction. There is no prior existence check: a double claim fails
// on the insert itself with ErrDuplicateAction and the transaction rolls back
// before any credit is written.
func (s *Service) Record(ctx context.Context, req domain.RecordActionRequest) (domain.RecordActionResponse, error) {
	if req.MemberID == 0 {
		return domain.RecordActionResponse{}, domain.ErrInvalidMember
	}
	if req.TargetID == 0 {
		return domain.RecordActionResponse{}, domain.ErrInvalidTarget
	}

	points, source, err := s.resolveReward(req)
	if err != nil {
		return domain.RecordActionResponse{}, err
	}

	correct := true
	if req.ActionType == domain.ActionQuizAttempt && req.Correct != nil {
		correct = *req.Correct
	}
	if !correct {
		points = 0
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	action := domain.RewardableAction{
		ID:           s.genID.Generate(),
		MemberID:     req.MemberID,
		ActionType:   req.ActionType,
		TargetID:     req.TargetID,
		Subtype:      strings.ToLower(strings.TrimSpace(req.Subtype)),
		Correct:      correct,
		Points:       points,
		CompletionMs: req.CompletionMs,
		Metadata:     datatypes.JSONMap(metadata),
		CreatedAt:    time.Now().UTC(),
	}
	if meta, ok := obscontext.ClientMetaFromContext(ctx); ok {
		action.IPAddress = meta.IPAddress
		action.UserAgent = meta.UserAgent
		action.Fingerprint = meta.Fingerprint
	}

	resp := domain.RecordActionResponse{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&action).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateAction
			}
			return err
		}

		resp.Action = action
		if points <= 0 {
			return nil
		}

		actionID := action.ID
		txn, err := s.ledgerSvc.CreditTx(ctx, tx, ledgerdomain.EntryRequest{
			MemberID:    req.MemberID,
			Amount:      points,
			Source:      source,
			ReferenceID: &actionID,
		})
		if err != nil {
			return err
		}
		resp.Credited = true
		resp.Transaction = &txn
		return nil
	})
	if err != nil {
		if s.obsMetrics != nil {
			result := "error"
			if errors.Is(err, domain.ErrDuplicateAction) {
				result = "duplicate"
			}
			s.obsMetrics.RecordAction(ctx, string(req.ActionType), result)
		}
		return domain.RecordActionResponse{}, err
	}

	if s.obsMetrics != nil {
		result := "recorded"
		if resp.Credited {
			result = "credited"
		}
		s.obsMetrics.RecordAction(ctx, string(req.ActionType), result)
	}
	if s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeMember, req.MemberID.String(), "action.record", string(req.ActionType), req.TargetID.String(), map[string]any{
			"subtype":  action.Subtype,
			"correct":  correct,
			"points":   points,
			"credited": resp.Credited,
		})
	}

	return resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListActionRequest) (domain.ListActionResponse, error) {
	memberID, err := snowflake.ParseString(strings.TrimSpace(req.MemberID))
	if err != nil || memberID == 0 {
		return domain.ListActionResponse{}, domain.ErrInvalidMember
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	stmt := s.db.WithContext(ctx).
		Model(&domain.RewardableAction{}).
		Where("member_id = ?", memberID)
	if actionType := strings.TrimSpace(req.ActionType); actionType != "" {
		stmt = stmt.Where("action_type = ?", actionType)
	}
	stmt = option.ApplyPagination(pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	}).Apply(stmt)

	var actions []*domain.RewardableAction
	if err := stmt.Order("id desc").Find(&actions).Error; err != nil {
		return domain.ListActionResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(actions, pageSize, func(action *domain.RewardableAction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        action.ID.String(),
			CreatedAt: action.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(actions) > int(pageSize) {
		actions = actions[:pageSize]
	}

	items := make([]domain.RewardableAction, 0, len(actions))
	for _, action := range actions {
		if action == nil {
			continue
		}
		items = append(items, *action)
	}

	resp := domain.ListActionResponse{Actions: items}
	if pageInfo != nil {
		resp.NextPageToken = pageInfo.NextPageToken
		resp.HasMore = pageInfo.HasMore
	}
	return resp, nil
}

// resolveReward maps the action to its configured point value and ledger
// source. A positive request override wins, for targets carrying their own
// point value.
func (s *Service) resolveReward(req domain.RecordActionRequest) (int64, ledgerdomain.Source, error) {
	var points int64
	var source ledgerdomain.Source

	switch req.ActionType {
	case domain.ActionQuizAttempt:
		points, source = s.rewards.QuizPoints, ledgerdomain.SourceQuiz
	case domain.ActionTaskCompletion:
		source = ledgerdomain.SourceTask
		switch strings.ToLower(strings.TrimSpace(req.Subtype)) {
		case domain.SubtypeTaskMicro:
			points = s.rewards.TaskMicroPoints
		case domain.SubtypeTaskVolunteer:
			points = s.rewards.TaskVolunteerPoints
		default:
			return 0, "", domain.ErrInvalidSubtype
		}
	case domain.ActionCampaignVote:
		points, source = s.rewards.CampaignVotePoints, ledgerdomain.SourceCampaign
	case domain.ActionEventAttendance:
		points, source = s.rewards.EventAttendancePoints, ledgerdomain.SourceEvent
	case domain.ActionShare:
		points, source = s.rewards.SharePoints, ledgerdomain.SourceShare
	default:
		return 0, "", domain.ErrInvalidType
	}

	if req.Points > 0 {
		points = req.Points
	}
	return points, source, nil
}
