package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/groundswell-app/groundswell/internal/audit/domain"
	"github.com/groundswell-app/groundswell/internal/config"
	ledgerdomain "github.com/groundswell-app/groundswell/internal/ledger/domain"
	obsmetrics "github.com/groundswell-app/groundswell/internal/observability/metrics"
	"github.com/groundswell-app/groundswell/internal/referral/domain"
	"github.com/groundswell-app/groundswell/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// codeAlphabet deliberately omits 0/O, 1/I/L and U to keep codes readable and
// unambiguous when shared verbally.
const codeAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ23456789"

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
	bonus      int64
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("referral.service"),
		genID:      p.GenID,
		bonus:      p.Config.Rewards.ReferralBonusPoints,
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// GetOrCreateCode inserts the member's code with ON CONFLICT DO NOTHING and
// reads back whichever row won, so concurrent first calls agree on one code.
func (s *Service) GetOrCreateCode(ctx context.Context, req domain.GetOrCreateCodeRequest) (domain.ReferralCode, error) {
	memberID, err := snowflake.ParseString(strings.TrimSpace(req.MemberID))
	if err != nil || memberID == 0 {
		return domain.ReferralCode{}, domain.ErrInvalidID
	}

	id := s.genID.Generate()
	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO referral_codes (id, member_id, code, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (member_id) DO NOTHING`,
		id,
		memberID,
		codeFromID(id),
		time.Now().UTC(),
	).Error; err != nil {
		return domain.ReferralCode{}, err
	}

	var code domain.ReferralCode
	if err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Take(&code).Error; err != nil {
		return domain.ReferralCode{}, err
	}
	return code, nil
}

func (s *Service) RecordReferral(ctx context.Context, req domain.RecordReferralRequest) (domain.Referral, error) {
	var referral domain.Referral
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var innerErr error
		referral, innerErr = s.RecordReferralTx(ctx, tx, req)
		return innerErr
	})
	return referral, err
}

// RecordReferralTx creates the referral link and credits the referrer bonus
// inside the caller's transaction. Duplicate links are rejected by the unique
// index on the referred member, not by a prior lookup.
func (s *Service) RecordReferralTx(ctx context.Context, tx *gorm.DB, req domain.RecordReferralRequest) (domain.Referral, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" || req.ReferredMemberID == 0 {
		return domain.Referral{}, domain.ErrInvalidReferral
	}

	var owner domain.ReferralCode
	err := tx.WithContext(ctx).Where("code = ?", code).Take(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Referral{}, domain.ErrInvalidReferral
	}
	if err != nil {
		return domain.Referral{}, err
	}

	if owner.MemberID == req.ReferredMemberID {
		return domain.Referral{}, domain.ErrSelfReferral
	}

	referral := domain.Referral{
		ID:         s.genID.Generate(),
		ReferrerID: owner.MemberID,
		ReferredID: req.ReferredMemberID,
		Code:       code,
		CreatedAt:  time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&referral).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Referral{}, domain.ErrAlreadyReferred
		}
		return domain.Referral{}, err
	}

	referralID := referral.ID
	if _, err := s.ledgerSvc.CreditTx(ctx, tx, ledgerdomain.EntryRequest{
		MemberID:    owner.MemberID,
		Amount:      s.bonus,
		Source:      ledgerdomain.SourceReferral,
		ReferenceID: &referralID,
	}); err != nil {
		return domain.Referral{}, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordReferral(ctx)
	}
	if s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeMember, req.ReferredMemberID.String(), "referral.credited", "referral", referral.ID.String(), map[string]any{
			"referrer_id": owner.MemberID.String(),
			"code":        code,
			"bonus":       s.bonus,
		})
	}

	return referral, nil
}

func (s *Service) ListByReferrer(ctx context.Context, memberID string) ([]domain.Referral, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(memberID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidID
	}

	var referrals []domain.Referral
	if err := s.db.WithContext(ctx).
		Where("referrer_id = ?", id).
		Order("id desc").
		Find(&referrals).Error; err != nil {
		return nil, err
	}
	return referrals, nil
}

// codeFromID derives a short shareable code from a snowflake ID. IDs are
// unique, so codes are too; no retry loop is needed.
func codeFromID(id snowflake.ID) string {
	n := uint64(id.Int64())
	var b [13]byte
	i := len(b)
	for n > 0 && i > 0 {
		i--
		b[i] = codeAlphabet[n%uint64(len(codeAlphabet))]
		n /= uint64(len(codeAlphabet))
	}
	return "GS-" + string(b[i:])
}
