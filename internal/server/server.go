// Package server exposes the pool engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/axiomprotocol/susu/internal/audit"
	auditdomain "github.com/axiomprotocol/susu/internal/audit/domain"
	"github.com/axiomprotocol/susu/internal/cache"
	"github.com/axiomprotocol/susu/internal/clock"
	"github.com/axiomprotocol/susu/internal/config"
	"github.com/axiomprotocol/susu/internal/contribution"
	"github.com/axiomprotocol/susu/internal/entropy"
	"github.com/axiomprotocol/susu/internal/membership"
	obsmetrics "github.com/axiomprotocol/susu/internal/observability/metrics"
	"github.com/axiomprotocol/susu/internal/payout"
	payoutdomain "github.com/axiomprotocol/susu/internal/payout/domain"
	"github.com/axiomprotocol/susu/internal/pool"
	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	"github.com/axiomprotocol/susu/internal/ratelimit"
	"github.com/axiomprotocol/susu/internal/token"
	tokendomain "github.com/axiomprotocol/susu/internal/token/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	entropy.Module,
	obsmetrics.Module,
	cache.Module,
	ratelimit.Module,
	audit.Module,
	token.Module,
	membership.Module,
	contribution.Module,
	payout.Module,
	pool.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, reg *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
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
	engine    *gin.Engine
	cfg       config.Config
	log       *zap.Logger
	poolSvc   pooldomain.Service
	payoutSvc payoutdomain.Service
	auditSvc  auditdomain.Service
	ledger    tokendomain.Ledger
	limiter   *ratelimit.TokenBucket
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	Log       *zap.Logger
	PoolSvc   pooldomain.Service
	PayoutSvc payoutdomain.Service
	AuditSvc  auditdomain.Service
	Ledger    tokendomain.Ledger
	Limiter   *ratelimit.TokenBucket `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       p.Log.Named("http.server"),
		poolSvc:   p.PoolSvc,
		payoutSvc: p.PayoutSvc,
		auditSvc:  p.AuditSvc,
		ledger:    p.Ledger,
		limiter:   p.Limiter,
	}

	svc.registerPoolRoutes()
	svc.registerLedgerRoutes()

	return svc
}

func (s *Server) registerPoolRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/pools", s.createPool)
	v1.GET("/pools", s.listPools)
	v1.GET("/pools/:id", s.getPool)
	v1.POST("/pools/:id/join", s.joinPool)
	v1.POST("/pools/:id/start", s.startPool)
	v1.POST("/pools/:id/contribute", s.ContributeRateLimit(), s.contribute)
	v1.POST("/pools/:id/exit", s.exitPool)
	v1.POST("/pools/:id/cancel", s.cancelPool)

	v1.GET("/pools/:id/members", s.listMembers)
	v1.GET("/pools/:id/members/:identity", s.getMember)
	v1.GET("/pools/:id/order", s.payoutOrder)
	v1.GET("/pools/:id/cycle", s.cycleInfo)
	v1.GET("/pools/:id/recipient", s.currentRecipient)
	v1.GET("/pools/:id/expected-payout", s.expectedPayout)
	v1.GET("/pools/:id/payouts", s.listPayouts)
	v1.GET("/pools/:id/contributions", s.getContribution)
	v1.GET("/pools/:id/events", s.listEvents)

	v1.GET("/users/:identity/pools", s.userPools)
	v1.GET("/stats", s.stats)
}

func (s *Server) registerLedgerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/ledger/mint", s.mint)
	v1.POST("/ledger/approve", s.approve)
	v1.GET("/ledger/balance", s.balance)
	v1.GET("/ledger/allowance", s.allowance)
}
