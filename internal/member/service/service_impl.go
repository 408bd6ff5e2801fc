package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/groundswell-app/groundswell/internal/audit/domain"
	"github.com/groundswell-app/groundswell/internal/member/domain"
	referraldomain "github.com/groundswell-app/groundswell/internal/referral/domain"
	"github.com/groundswell-app/groundswell/pkg/db"
	"github.com/groundswell-app/groundswell/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	ReferralSvc referraldomain.Service
	AuditSvc    auditdomain.Service `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	referralSvc referraldomain.Service
	auditSvc    auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("member.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		referralSvc: p.ReferralSvc,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterMemberRequest) (domain.Member, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return domain.Member{}, domain.ErrInvalidName
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Member{}, domain.ErrInvalidEmail
	}

	now := time.Now().UTC()
	member := domain.Member{
		ID:               s.genID.Generate(),
		FullName:         name,
		Email:            email,
		Phone:            strings.TrimSpace(req.Phone),
		Status:           domain.StatusPending,
		ReferralCodeUsed: strings.ToUpper(strings.TrimSpace(req.ReferralCode)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Insert(ctx, s.db, &member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Member{}, domain.ErrEmailExists
		}
		return domain.Member{}, err
	}

	return member, nil
}

// Activate completes a pending registration. The member's stored referral
// code, if any, is converted into a referral link and referrer credit in the
// same transaction as the status change. A code that turns out to be invalid
// does not block activation; it is dropped with a warning.
func (s *Service) Activate(ctx context.Context, req domain.GetMemberRequest) (domain.Member, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Member{}, err
	}

	member, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Member{}, err
	}
	if member == nil {
		return domain.Member{}, domain.ErrNotFound
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.UpdateStatus(ctx, tx, id, []domain.Status{domain.StatusPending}, domain.StatusActive)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrInvalidTransition
		}

		if member.ReferralCodeUsed == "" {
			return nil
		}

		_, err = s.referralSvc.RecordReferralTx(ctx, tx, referraldomain.RecordReferralRequest{
			Code:             member.ReferralCodeUsed,
			ReferredMemberID: id,
		})
		if err != nil {
			if errors.Is(err, referraldomain.ErrInvalidReferral) ||
				errors.Is(err, referraldomain.ErrSelfReferral) ||
				errors.Is(err, referraldomain.ErrAlreadyReferred) {
				s.log.Warn("referral code dropped on activation",
					zap.String("member_id", id.String()),
					zap.String("code", member.ReferralCodeUsed),
					zap.Error(err),
				)
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Member{}, err
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeMember, id.String(), "member.activate", "member", id.String(), nil)
	}

	member.Status = domain.StatusActive
	return *member, nil
}

func (s *Service) Suspend(ctx context.Context, req domain.GetMemberRequest) (domain.Member, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Member{}, err
	}

	rows, err := s.repo.UpdateStatus(ctx, s.db, id, []domain.Status{domain.StatusActive, domain.StatusPending}, domain.StatusSuspended)
	if err != nil {
		return domain.Member{}, err
	}
	if rows == 0 {
		return domain.Member{}, domain.ErrInvalidTransition
	}

	member, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Member{}, err
	}
	if member == nil {
		return domain.Member{}, domain.ErrNotFound
	}
	return *member, nil
}

// SoftDelete marks the member deleted and keeps the row; ledger history must
// stay replayable.
func (s *Service) SoftDelete(ctx context.Context, req domain.GetMemberRequest) error {
	id, err := s.parseID(req.ID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.UpdateStatus(ctx, tx, id, nil, domain.StatusDeleted); err != nil {
			return err
		}
		result := tx.WithContext(ctx).Delete(&domain.Member{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (s *Service) GetByID(ctx context.Context, req domain.GetMemberRequest) (domain.Member, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Member{}, err
	}

	member, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Member{}, err
	}
	if member == nil {
		return domain.Member{}, domain.ErrNotFound
	}
	return *member, nil
}

func (s *Service) List(ctx context.Context, req domain.ListMemberRequest) (domain.ListMemberResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, domain.ListMemberFilter{
		Status: strings.TrimSpace(req.Status),
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListMemberResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(member *domain.Member) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        member.ID.String(),
			CreatedAt: member.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	members := make([]domain.Member, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		members = append(members, *item)
	}

	resp := domain.ListMemberResponse{Members: members}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
