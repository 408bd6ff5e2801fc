package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/groundswell-app/groundswell/internal/action"
	actiondomain "github.com/groundswell-app/groundswell/internal/action/domain"
	"github.com/groundswell-app/groundswell/internal/audit"
	auditdomain "github.com/groundswell-app/groundswell/internal/audit/domain"
	"github.com/groundswell-app/groundswell/internal/config"
	"github.com/groundswell-app/groundswell/internal/ledger"
	ledgerdomain "github.com/groundswell-app/groundswell/internal/ledger/domain"
	"github.com/groundswell-app/groundswell/internal/member"
	memberdomain "github.com/groundswell-app/groundswell/internal/member/domain"
	"github.com/groundswell-app/groundswell/internal/observability"
	obsmiddleware "github.com/groundswell-app/groundswell/internal/observability/logger"
	obsmetrics "github.com/groundswell-app/groundswell/internal/observability/metrics"
	obstracing "github.com/groundswell-app/groundswell/internal/observability/tracing"
	"github.com/groundswell-app/groundswell/internal/providers/topup"
	"github.com/groundswell-app/groundswell/internal/ratelimit"
	"github.com/groundswell-app/groundswell/internal/redemption"
	redemptiondomain "github.com/groundswell-app/groundswell/internal/redemption/domain"
	"github.com/groundswell-app/groundswell/internal/referral"
	referraldomain "github.com/groundswell-app/groundswell/internal/referral/domain"
	"github.com/groundswell-app/groundswell/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	ledger.Module,
	referral.Module,
	member.Module,
	action.Module,
	topup.Module,
	redemption.Module,
	ratelimit.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	memberSvc     memberdomain.Service
	actionSvc     actiondomain.Service
	ledgerSvc     ledgerdomain.Service
	redemptionSvc redemptiondomain.Service
	referralSvc   referraldomain.Service
	auditSvc      auditdomain.Service
	earnLimiter   *ratelimit.EarnLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	MemberSvc     memberdomain.Service
	ActionSvc     actiondomain.Service
	LedgerSvc     ledgerdomain.Service
	RedemptionSvc redemptiondomain.Service
	ReferralSvc   referraldomain.Service
	AuditSvc      auditdomain.Service
	EarnLimiter   *ratelimit.EarnLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		memberSvc:     p.MemberSvc,
		actionSvc:     p.ActionSvc,
		ledgerSvc:     p.LedgerSvc,
		redemptionSvc: p.RedemptionSvc,
		referralSvc:   p.ReferralSvc,
		auditSvc:      p.AuditSvc,
		earnLimiter:   p.EarnLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Members --------
	api.POST("/members", s.RegisterMember)
	api.GET("/members", s.ListMembers)
	api.GET("/members/:id", s.GetMemberByID)
	api.POST("/members/:id/activate", s.ActivateMember)
	api.POST("/members/:id/suspend", s.SuspendMember)
	api.DELETE("/members/:id", s.DeleteMember)

	// -------- Ledger --------
	api.GET("/members/:id/balance", s.GetBalance)
	api.GET("/members/:id/transactions", s.ListTransactions)
	api.GET("/members/:id/balance/verify", s.VerifyBalance)

	// -------- Actions --------
	api.POST("/actions", s.MemberContext(), s.RecordAction)
	api.GET("/members/:id/actions", s.ListActions)

	// -------- Redemptions --------
	api.POST("/redemptions", s.MemberContext(), s.InitiateRedemption)
	api.GET("/redemptions/:id", s.GetRedemptionByID)
	api.GET("/members/:id/redemptions", s.ListRedemptions)

	// -------- Referrals --------
	api.GET("/members/:id/referral-code", s.GetReferralCode)
	api.GET("/members/:id/referrals", s.ListReferrals)
}

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/webhooks")

	webhooks.POST("/topup/:provider", s.HandleTopupCallback)
}
