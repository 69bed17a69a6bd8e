package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/config"
	"github.com/aman-churiwal/api-marketplace/internal/handler"
	"github.com/aman-churiwal/api-marketplace/internal/middleware"
	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/proxy"
	"github.com/aman-churiwal/api-marketplace/internal/pubsub"
	"github.com/aman-churiwal/api-marketplace/internal/ratelimit"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Options carries the optional collaborators. Leave a field nil to disable it.
type Options struct {
	Redis      *storage.RedisClient
	ProofStore service.ProofStore
	Publisher  pubsub.Publisher
	Notifier   service.Notifier
	Now        func() time.Time
	Logger     zerolog.Logger
}

// Services are the long-lived domain services shared with background jobs.
type Services struct {
	Auth          *service.AuthService
	Keys          *service.APIKeyService
	Gate          *service.AccessGate
	Users         *service.UserService
	Billing       *service.BillingService
	Subscriptions *service.SubscriptionService
	Usage         *service.UsageService
	Analytics     *service.AnalyticsService
	Audit         *service.AuditTrail
}

type Server struct {
	router        *gin.Engine
	config        *config.Config
	db            *storage.Database
	redis         *storage.RedisClient
	logger        zerolog.Logger
	now           func() time.Time
	proxies       map[string]*proxy.Proxy
	requestLogger *middleware.RequestLogger
	services      Services
	userRepo      *repository.UserRepository
	httpServer    *http.Server
}

func New(cfg *config.Config, db *storage.Database, opts Options) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	if err := handler.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	s := &Server{
		router:  gin.New(),
		config:  cfg,
		db:      db,
		redis:   opts.Redis,
		logger:  opts.Logger,
		now:     opts.Now,
		proxies: make(map[string]*proxy.Proxy),
	}

	s.buildServices(opts)

	if err := s.initializeProxies(); err != nil {
		s.stopProxies()
		return nil, err
	}

	s.requestLogger = middleware.NewRequestLogger(repository.NewRequestLogRepository(db), 1000, s.logger)

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) buildServices(opts Options) {
	db := s.db
	logger := s.logger
	now := s.now
	billing := s.config.Billing

	users := repository.NewUserRepository(db)
	apiKeys := repository.NewAPIKeyRepository(db)
	usage := repository.NewUsageRepository(db)
	subs := repository.NewSubscriptionRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	requestLogs := repository.NewRequestLogRepository(db)

	// A nil *RedisClient must not become a non-nil interface.
	var cache service.KeyCache
	if opts.Redis != nil {
		cache = opts.Redis
	}

	audit := service.NewAuditTrail(db, repository.NewAuditRepository(db), opts.Publisher, s.config.Audit.Topic, logger)
	keys := service.NewAPIKeyService(apiKeys, audit, cache, logger)
	ledger := service.NewQuotaLedger(db, usage)
	bans := service.NewBanNormalizer(users, now, logger)
	projector := service.NewPlanProjector(users, subs, apiKeys, billing, logger)
	subscriptions := service.NewSubscriptionService(db, subs, users, projector, keys, audit, billing, now, logger)

	s.userRepo = users
	s.services = Services{
		Auth:          service.NewAuthService(db, users, keys, bans, billing, s.config.JWT, now, logger),
		Keys:          keys,
		Gate:          service.NewAccessGate(keys, users, bans, ledger, now, logger),
		Users:         service.NewUserService(db, users, audit, now, logger),
		Billing:       service.NewBillingService(db, invoices, users, subscriptions, projector, keys, audit, opts.ProofStore, opts.Notifier, billing, now, logger),
		Subscriptions: subscriptions,
		Usage:         service.NewUsageService(users, apiKeys, usage, ledger, now),
		Analytics:     service.NewAnalyticsService(requestLogs, now),
		Audit:         audit,
	}
}

func (s *Server) initializeProxies() error {
	for _, upstream := range s.config.UpstreamList() {
		if len(upstream.Targets) == 0 {
			s.logger.Warn().Str("path", upstream.Path).Msg("upstream has no targets configured")
			continue
		}

		p, err := proxy.New(upstream.Path, upstream.Targets, s.config.UpstreamStrategy, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create proxy for %s: %w", upstream.Path, err)
		}

		s.proxies[upstream.Path] = p
	}
	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.CORS(s.config.Server.CORSOrigins))
	s.router.Use(s.requestLogger.Middleware())
}

func (s *Server) setupRoutes() {
	svc := s.services
	billingCfg := s.config.Billing

	authHandler := handler.NewAuthHandler(svc.Auth, s.logger)
	keyHandler := handler.NewAPIKeyHandler(svc.Keys, svc.Users, billingCfg, s.logger)
	userHandler := handler.NewUserHandler(svc.Users, svc.Audit, s.now, s.logger)
	invoiceHandler := handler.NewInvoiceHandler(svc.Billing, s.logger)
	billingHandler := handler.NewBillingHandler(svc.Billing, svc.Subscriptions, s.logger)
	subscriptionHandler := handler.NewSubscriptionHandler(svc.Subscriptions, s.logger)
	analyticsHandler := handler.NewAnalyticsHandler(svc.Analytics, s.now, s.logger)
	usageHandler := handler.NewUsageHandler(svc.Usage, svc.Analytics, s.now, s.logger)
	systemHandler := handler.NewSystemHandler(s.db, s.redis, s.userRepo, s.proxies, s.logger)

	s.router.GET("/health", systemHandler.Health)

	auth := s.router.Group("/auth")
	if s.redis != nil && s.config.Server.AuthBurstLimit > 0 {
		limiter := ratelimit.NewLimiter(s.redis, s.config.Server.AuthBurstAlgorithm, s.config.Server.AuthBurstLimit, time.Minute)
		auth.Use(middleware.BurstLimit(limiter, "auth", s.logger))
	}
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	me := s.router.Group("/me", middleware.RequireAuth(svc.Auth, s.logger))
	{
		me.GET("", authHandler.Me)
		me.GET("/quota", usageHandler.Quota)
		me.GET("/logs", usageHandler.Logs)
		me.GET("/subscription", billingHandler.Subscription)

		me.GET("/keys", keyHandler.ListOwn)
		me.POST("/keys", keyHandler.CreateOwn)
		me.DELETE("/keys/:id", keyHandler.RevokeOwn)
		me.GET("/keys/:id/usage", usageHandler.History)

		me.POST("/invoices", billingHandler.Create)
		me.GET("/invoices", billingHandler.List)
		me.GET("/invoices/:id", billingHandler.Get)
		me.POST("/invoices/:id/proof", billingHandler.SubmitProof)
		me.POST("/invoices/:id/cancel", billingHandler.Cancel)
	}

	admin := s.router.Group("/admin", middleware.RequireAuth(svc.Auth, s.logger), middleware.RequireRole(models.RoleSuperAdmin))
	{
		admin.GET("/status", systemHandler.Status)
		admin.GET("/upstreams", systemHandler.UpstreamHealth)
		admin.GET("/circuit-breakers", systemHandler.CircuitBreakerStatus)
		admin.POST("/circuit-breakers/reset/*service", systemHandler.ResetCircuitBreaker)

		admin.GET("/users", userHandler.List)
		admin.GET("/users/:id", userHandler.Get)
		admin.POST("/users/:id/ban", userHandler.Ban)
		admin.POST("/users/:id/unblock", userHandler.Unblock)
		admin.PUT("/users/:id/referral-bonus", userHandler.SetReferralBonus)
		admin.GET("/users/:id/subscriptions", subscriptionHandler.ListByUser)
		admin.GET("/audit", userHandler.AuditTrail)

		admin.GET("/keys", keyHandler.List)
		admin.GET("/keys/:id", keyHandler.Get)
		admin.POST("/keys", keyHandler.Create)
		admin.PATCH("/keys/:id", keyHandler.Update)

		admin.POST("/invoices", invoiceHandler.Create)
		admin.GET("/invoices", invoiceHandler.List)
		admin.GET("/invoices/:id", invoiceHandler.Get)
		admin.PATCH("/invoices/:id", invoiceHandler.Patch)
		admin.GET("/invoices/:id/proof", invoiceHandler.ProofURL)

		admin.POST("/subscriptions", subscriptionHandler.Grant)
		admin.GET("/subscriptions/:id", subscriptionHandler.Get)
		admin.PATCH("/subscriptions/:id", subscriptionHandler.Override)

		admin.GET("/analytics", analyticsHandler.GetSummary)
		admin.GET("/analytics/timeseries", analyticsHandler.GetTimeSeries)
		admin.GET("/analytics/keys/:id", analyticsHandler.GetAPIKeyStats)
		admin.GET("/logs", analyticsHandler.GetLogs)
	}

	metered := middleware.MeteredAccess(svc.Gate, svc.Keys, s.logger)

	s.router.GET("/v1/me/quota", metered, usageHandler.MeteredQuota)
	s.setupProxyRoutes(metered)
}

func (s *Server) setupProxyRoutes(metered gin.HandlerFunc) {
	for path, proxyInstance := range s.proxies {
		p := proxyInstance

		s.router.Any(path+"/*proxyPath", metered, p.Handle)
		s.router.Any(path, metered, p.Handle)

		s.logger.Info().Str("path", path).Msg("registered metered upstream route")
	}
}

func (s *Server) stopProxies() {
	for _, p := range s.proxies {
		p.Stop()
	}
}

// Services exposes the domain services to the scheduler and bootstrap.
func (s *Server) Services() Services {
	return s.services
}

// Run serves HTTP until Shutdown. The request logger's writer stops when ctx
// is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.requestLogger.Start(ctx)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Str("environment", s.config.Server.Environment).Msg("starting api marketplace")

	return s.httpServer.ListenAndServe()
}

// Shutdown drains HTTP connections, stops health checks and waits for the
// request log to flush. The caller cancels the Run context first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
		s.requestLogger.Wait()
	}
	s.stopProxies()

	return err
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
