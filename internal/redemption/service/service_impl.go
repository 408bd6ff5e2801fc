package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/groundswell-app/groundswell/internal/audit/domain"
	"github.com/groundswell-app/groundswell/internal/clock"
	"github.com/groundswell-app/groundswell/internal/config"
	ledgerdomain "github.com/groundswell-app/groundswell/internal/ledger/domain"
	obsmetrics "github.com/groundswell-app/groundswell/internal/observability/metrics"
	"github.com/groundswell-app/groundswell/internal/providers/topup"
	"github.com/groundswell-app/groundswell/internal/redemption/domain"
	"github.com/groundswell-app/groundswell/pkg/db/option"
	"github.com/groundswell-app/groundswell/pkg/db/pagination"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	LedgerSvc  ledgerdomain.Service
	Provider   topup.Provider
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	maxAttempts int
	ledgerSvc   ledgerdomain.Service
	provider    topup.Provider
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	maxAttempts := p.Config.Topup.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("redemption.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		maxAttempts: maxAttempts,
		ledgerSvc:   p.LedgerSvc,
		provider:    p.Provider,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

// Initiate debits the points and writes the pending redemption in one
// transaction, then attempts delivery. The debit always lands before the
// provider is contacted; whatever happens afterwards is resolved by a guarded
// status transition, so the member either gets the topup or the refund.
func (s *Service) Initiate(ctx context.Context, req domain.InitiateRequest) (domain.Redemption, error) {
	if req.MemberID == 0 {
		return domain.Redemption{}, domain.ErrInvalidMember
	}
	if req.Product != domain.ProductAirtime && req.Product != domain.ProductData {
		return domain.Redemption{}, domain.ErrInvalidProduct
	}
	if req.Points <= 0 {
		return domain.Redemption{}, domain.ErrInvalidAmount
	}
	msisdn := strings.TrimSpace(req.MSISDN)
	if len(msisdn) < 7 {
		return domain.Redemption{}, domain.ErrInvalidMSISDN
	}

	now := s.clock.Now()
	redemption := domain.Redemption{
		ID:        s.genID.Generate(),
		MemberID:  req.MemberID,
		Product:   req.Product,
		Points:    req.Points,
		MSISDN:    msisdn,
		Status:    domain.StatusPending,
		Provider:  s.provider.Name(),
		Reference: ulid.Make().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&redemption).Error; err != nil {
			return err
		}
		redemptionID := redemption.ID
		_, err := s.ledgerSvc.DebitTx(ctx, tx, ledgerdomain.EntryRequest{
			MemberID:    req.MemberID,
			Amount:      req.Points,
			Source:      ledgerdomain.SourceRedemption,
			ReferenceID: &redemptionID,
		})
		return err
	})
	if err != nil {
		return domain.Redemption{}, err
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeMember, req.MemberID.String(), "redemption.initiate", "redemption", redemption.ID.String(), map[string]any{
			"product":   string(req.Product),
			"points":    req.Points,
			"reference": redemption.Reference,
		})
	}

	s.deliver(ctx, &redemption)
	return s.reload(ctx, redemption.ID)
}

// deliver runs the bounded purchase loop. Transient provider failures retry
// under the same reference; terminal ones fail and refund immediately.
func (s *Service) deliver(ctx context.Context, redemption *domain.Redemption) {
	req := topup.PurchaseRequest{
		Reference: redemption.Reference,
		MSISDN:    redemption.MSISDN,
		Product:   string(redemption.Product),
		Amount:    redemption.Points,
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.bumpAttempts(ctx, redemption.ID)

		result, err := s.provider.Purchase(ctx, req)
		if err == nil {
			switch result.Status {
			case topup.StatusDelivered:
				s.complete(ctx, redemption.ID, result.ProviderRef)
			default:
				// Accepted: the provider will resolve it via callback
				// or the reconciler.
				s.storeProviderRef(ctx, redemption.ID, result.ProviderRef)
			}
			return
		}

		lastErr = err
		if !errors.Is(err, topup.ErrProviderFailure) {
			break
		}
		s.log.Warn("topup attempt failed",
			zap.String("reference", redemption.Reference),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	reason := "provider_failure"
	if lastErr != nil && !errors.Is(lastErr, topup.ErrProviderFailure) {
		reason = "provider_rejected"
	}
	if err := s.failAndRefund(ctx, redemption.ID, reason); err != nil {
		s.log.Error("failed to refund redemption",
			zap.String("redemption_id", redemption.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) Get(ctx context.Context, req domain.GetRequest) (domain.Redemption, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Redemption{}, domain.ErrNotFound
	}
	return s.reload(ctx, id)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	memberID, err := snowflake.ParseString(strings.TrimSpace(req.MemberID))
	if err != nil || memberID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidMember
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	stmt := s.db.WithContext(ctx).
		Model(&domain.Redemption{}).
		Where("member_id = ?", memberID)
	if status := strings.TrimSpace(req.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	stmt = option.ApplyPagination(pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	}).Apply(stmt)

	var rows []*domain.Redemption
	if err := stmt.Order("id desc").Find(&rows).Error; err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(rows, pageSize, func(row *domain.Redemption) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        row.ID.String(),
			CreatedAt: row.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(rows) > int(pageSize) {
		rows = rows[:pageSize]
	}

	items := make([]domain.Redemption, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		items = append(items, *row)
	}

	resp := domain.ListResponse{Redemptions: items}
	if pageInfo != nil {
		resp.NextPageToken = pageInfo.NextPageToken
		resp.HasMore = pageInfo.HasMore
	}
	return resp, nil
}

// HandleCallback applies a provider status notification. Signature checking
// happens at the transport; here only guarded transitions run, so a replayed
// callback finds no pending row and changes nothing.
func (s *Service) HandleCallback(ctx context.Context, event topup.CallbackEvent) (domain.Redemption, error) {
	var redemption domain.Redemption
	err := s.db.WithContext(ctx).
		Where("reference = ?", strings.TrimSpace(event.Reference)).
		Take(&redemption).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Redemption{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Redemption{}, err
	}

	switch event.Status {
	case topup.StatusDelivered:
		providerRef := event.ProviderRef
		if providerRef == "" {
			providerRef = redemption.ProviderRef
		}
		if err := s.complete(ctx, redemption.ID, providerRef); err != nil {
			return domain.Redemption{}, err
		}
	case topup.StatusFailed:
		reason := event.Reason
		if reason == "" {
			reason = "provider_failure"
		}
		if err := s.failAndRefund(ctx, redemption.ID, reason); err != nil {
			return domain.Redemption{}, err
		}
	case topup.StatusAccepted:
		if event.ProviderRef != "" {
			s.storeProviderRef(ctx, redemption.ID, event.ProviderRef)
		}
	}

	return s.reload(ctx, redemption.ID)
}

// Reconcile resolves pending redemptions older than the given age by asking
// the provider, and expires the ones the provider never saw. Returns how many
// rows reached a terminal status.
func (s *Service) Reconcile(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-olderThan)

	var stale []domain.Redemption
	if err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.StatusPending, cutoff).
		Order("id asc").
		Limit(100).
		Find(&stale).Error; err != nil {
		return 0, err
	}

	resolved := 0
	for _, redemption := range stale {
		result, err := s.provider.Status(ctx, redemption.Reference)
		switch {
		case err == nil && result.Status == topup.StatusDelivered:
			if err := s.complete(ctx, redemption.ID, result.ProviderRef); err == nil {
				resolved++
			}
		case err == nil && result.Status == topup.StatusFailed,
			errors.Is(err, topup.ErrUnknownReference):
			if err := s.failAndRefund(ctx, redemption.ID, "reconciled_stale"); err == nil {
				resolved++
			}
		case err != nil && !errors.Is(err, topup.ErrProviderFailure):
			if err := s.failAndRefund(ctx, redemption.ID, "provider_rejected"); err == nil {
				resolved++
			}
		default:
			// Still in flight or provider unreachable; leave it for the
			// next pass.
		}
	}

	if resolved > 0 {
		s.log.Info("reconciled stale redemptions", zap.Int("resolved", resolved))
	}
	return resolved, nil
}

// complete moves pending → completed. The WHERE status guard makes the
// transition idempotent under callback replays and races with the reconciler.
func (s *Service) complete(ctx context.Context, id snowflake.ID, providerRef string) error {
	result := s.db.WithContext(ctx).
		Model(&domain.Redemption{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":       domain.StatusCompleted,
			"provider_ref": providerRef,
			"updated_at":   s.clock.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRedemption(ctx, s.provider.Name(), string(domain.StatusCompleted))
		}
		if s.auditSvc != nil {
			_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeSystem, "", "redemption.complete", "redemption", id.String(), map[string]any{
				"provider_ref": providerRef,
			})
		}
	}
	return nil
}

// failAndRefund moves pending → failed and credits the points back. The
// guarded UPDATE and the credit share one transaction: the refund is written
// exactly when the transition happens, so no replay or race can pay it twice.
func (s *Service) failAndRefund(ctx context.Context, id snowflake.ID, reason string) error {
	refunded := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var redemption domain.Redemption
		if err := tx.WithContext(ctx).Take(&redemption, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		now := s.clock.Now()
		result := tx.WithContext(ctx).
			Model(&domain.Redemption{}).
			Where("id = ? AND status = ?", id, domain.StatusPending).
			Updates(map[string]any{
				"status":         domain.StatusFailed,
				"failure_reason": reason,
				"refunded_at":    now,
				"updated_at":     now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Already resolved by another path.
			return nil
		}

		redemptionID := redemption.ID
		_, err := s.ledgerSvc.CreditTx(ctx, tx, ledgerdomain.EntryRequest{
			MemberID:    redemption.MemberID,
			Amount:      redemption.Points,
			Source:      ledgerdomain.SourceRedemptionRefund,
			ReferenceID: &redemptionID,
		})
		if err != nil {
			return err
		}
		refunded = true
		return nil
	})
	if err != nil {
		return err
	}

	if refunded {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRedemption(ctx, s.provider.Name(), string(domain.StatusFailed))
		}
		if s.auditSvc != nil {
			_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeSystem, "", "redemption.refund", "redemption", id.String(), map[string]any{
				"reason": reason,
			})
		}
	}
	return nil
}

func (s *Service) bumpAttempts(ctx context.Context, id snowflake.ID) {
	err := s.db.WithContext(ctx).
		Model(&domain.Redemption{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": s.clock.Now(),
		}).Error
	if err != nil {
		s.log.Warn("failed to bump redemption attempts", zap.Error(err))
	}
}

func (s *Service) storeProviderRef(ctx context.Context, id snowflake.ID, providerRef string) {
	err := s.db.WithContext(ctx).
		Model(&domain.Redemption{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"provider_ref": providerRef,
			"updated_at":   s.clock.Now(),
		}).Error
	if err != nil {
		s.log.Warn("failed to store provider ref", zap.Error(err))
	}
}

func (s *Service) reload(ctx context.Context, id snowflake.ID) (domain.Redemption, error) {
	var redemption domain.Redemption
	err := s.db.WithContext(ctx).Take(&redemption, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Redemption{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Redemption{}, err
	}
	return redemption, nil
}
