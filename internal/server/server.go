package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/clinicdesk/internal/audit/domain"
	billingdomain "github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/billing/receipt"
	catalogdomain "github.com/smallbiznis/clinicdesk/internal/catalog/domain"
	"github.com/smallbiznis/clinicdesk/internal/config"
	"github.com/smallbiznis/clinicdesk/internal/observability"
	obsmiddleware "github.com/smallbiznis/clinicdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clinicdesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/clinicdesk/internal/observability/tracing"
	partydomain "github.com/smallbiznis/clinicdesk/internal/party/domain"
	"github.com/smallbiznis/clinicdesk/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
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
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine     *gin.Engine
	cfg        config.Config
	catalogSvc catalogdomain.Service
	partySvc   partydomain.Service
	billSvc    billingdomain.Service
	receipts   *receipt.Renderer
	billing    *config.BillingConfigHolder
	auditSvc   auditdomain.Service
	limiter    *ratelimit.BillWriteLimiter
	log        *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	CatalogSvc catalogdomain.Service
	PartySvc   partydomain.Service
	BillSvc    billingdomain.Service
	Receipts   *receipt.Renderer
	Billing    *config.BillingConfigHolder `optional:"true"`
	AuditSvc   auditdomain.Service         `optional:"true"`
	Limiter    *ratelimit.BillWriteLimiter `optional:"true"`
	Log        *zap.Logger                 `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		catalogSvc: p.CatalogSvc,
		partySvc:   p.PartySvc,
		billSvc:    p.BillSvc,
		receipts:   p.Receipts,
		billing:    p.Billing,
		auditSvc:   p.AuditSvc,
		limiter:    p.Limiter,
		log:        p.Log,
	}
	if svc.log == nil {
		svc.log = zap.NewNop()
	}
	svc.log = svc.log.Named("http.server")

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Catalog --------
	api.GET("/procedures", s.ListProcedures)
	api.POST("/procedures", s.CreateProcedure)
	api.GET("/procedures/:id", s.GetProcedureByID)

	// -------- Parties --------
	api.GET("/patients", s.ListPatients)
	api.POST("/patients", s.CreatePatient)
	api.GET("/patients/:id", s.GetPatientByID)
	api.GET("/doctors", s.ListDoctors)
	api.POST("/doctors", s.CreateDoctor)
	api.GET("/doctors/:id", s.GetDoctorByID)

	// -------- Bills --------
	writeLimit := s.billWriteLimit()
	api.GET("/bills", s.ListBills)
	api.POST("/bills", writeLimit, s.CreateBill)
	api.GET("/bills/:id", s.GetBillByID)
	api.PUT("/bills/:id", writeLimit, s.UpdateBill)
	api.GET("/bills/:id/payments", s.ListBillPayments)
	api.POST("/bills/:id/payments", writeLimit, s.RecordBillPayment)
	api.GET("/bills/:id/receipt", s.RenderBillReceipt)
	api.GET("/bills/:id/audit-logs", s.ListBillAuditLogs)

	api.GET("/settings/billing", s.GetBillingSettings)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

type billingSettingsResponse struct {
	PaymentModes     []string `json:"payment_modes"`
	SearchDebounceMs int      `json:"search_debounce_ms"`
	SearchPageSize   int      `json:"search_page_size"`
	DefaultBillType  string   `json:"default_bill_type"`
}

// GetBillingSettings exposes the operator-tunable drawer settings.
func (s *Server) GetBillingSettings(c *gin.Context) {
	cfg := config.DefaultBillingConfig()
	if s.billing != nil {
		cfg = s.billing.Get()
	}
	c.JSON(http.StatusOK, gin.H{"data": billingSettingsResponse{
		PaymentModes:     cfg.PaymentModes,
		SearchDebounceMs: cfg.SearchDebounceMs,
		SearchPageSize:   cfg.SearchPageSize,
		DefaultBillType:  cfg.DefaultBillType,
	}})
}
