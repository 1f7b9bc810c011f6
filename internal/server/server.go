// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/paydesk/ipintel/internal/auth"
	"github.com/paydesk/ipintel/internal/circuitbreaker"
	"github.com/paydesk/ipintel/internal/config"
	"github.com/paydesk/ipintel/internal/geodata"
	"github.com/paydesk/ipintel/internal/health"
	"github.com/paydesk/ipintel/internal/intel"
	"github.com/paydesk/ipintel/internal/logging"
	"github.com/paydesk/ipintel/internal/metrics"
	"github.com/paydesk/ipintel/internal/ratelimit"
	"github.com/paydesk/ipintel/internal/realtime"
	"github.com/paydesk/ipintel/internal/reputation"
	"github.com/paydesk/ipintel/internal/screening"
	"github.com/paydesk/ipintel/internal/security"
	"github.com/paydesk/ipintel/internal/traces"
	"github.com/paydesk/ipintel/internal/validation"
	"github.com/paydesk/ipintel/internal/webhooks"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	intel        screening.IntelClient
	breaker      *circuitbreaker.Breaker
	repStore     reputation.Store
	authMgr      *auth.Manager
	screening    *screening.Service
	geo          *geodata.Service
	webhookStore webhooks.Store
	dispatcher   *webhooks.Dispatcher
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger

	cancelRunCtx   context.CancelFunc         // cancels background goroutines started in Run
	tracesShutdown func(context.Context) error // flushes the OTLP exporter

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithIntelClient sets a custom intelligence provider (for testing)
func WithIntelClient(c screening.IntelClient) Option {
	return func(s *Server) {
		s.intel = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set intel client/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		// Reputation tiers with Postgres
		repStore := reputation.NewPostgresStore(db)
		if err := repStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate reputation store", "error", err)
		}
		s.repStore = repStore

		// API keys with Postgres
		authStore := auth.NewPostgresStore(db)
		if err := authStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate auth store", "error", err)
		}
		s.authMgr = auth.NewManager(authStore)

		// Webhooks with Postgres
		webhookStore := webhooks.NewPostgresStore(db)
		if err := webhookStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate webhook store", "error", err)
		}
		s.webhookStore = webhookStore
		s.logger.Info("webhooks enabled")
	} else {
		s.repStore = reputation.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")

		// API keys with in-memory store
		s.authMgr = auth.NewManager(auth.NewMemoryStore())

		// Webhooks with in-memory store
		s.webhookStore = webhooks.NewMemoryStore()
	}

	s.dispatcher = webhooks.NewDispatcher(s.webhookStore)

	// Country metadata and the sanctions list. The sanctions list is
	// compiled in, so screening works without a geodata file.
	if cfg.GeoDataPath != "" {
		geo, err := geodata.Load(cfg.GeoDataPath)
		if err != nil {
			s.logger.Warn("failed to load geodata, country metadata disabled",
				"path", cfg.GeoDataPath,
				"error", err,
			)
			geo = geodata.Empty()
		} else {
			s.logger.Info("geodata loaded", "path", cfg.GeoDataPath, "countries", geo.Count())
		}
		s.geo = geo
	} else {
		s.geo = geodata.Empty()
		s.logger.Info("no geodata file configured, sanctions list only")
	}

	// External intelligence provider behind a circuit breaker. Without a
	// provider, cache misses produce degraded classifications instead of
	// failing the screening.
	s.breaker = circuitbreaker.New(5, 30*time.Second)
	if s.intel == nil {
		if cfg.IntelAPIURL != "" {
			s.intel = intel.NewClient(intel.Config{
				BaseURL: cfg.IntelAPIURL,
				APIKey:  cfg.IntelAPIKey,
				Timeout: cfg.IntelTimeout,
			}, s.breaker, s.logger)
			s.logger.Info("external intelligence enabled", "url", cfg.IntelAPIURL)
		} else {
			s.intel = disabledIntel{}
			s.logger.Warn("no intelligence provider configured, cache misses will score degraded")
		}
	}

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.realtimeHub.SetMaxClients(cfg.MaxWSClients)
	s.logger.Info("realtime streaming enabled")

	// Screening pipeline: cache waterfall -> provider -> rules
	resolver := screening.NewResolver(s.repStore, s.intel)
	engine := screening.NewEngine(s.geo)
	s.screening = screening.NewService(resolver, engine).WithEmitter(&eventFanout{
		webhooks: webhooks.NewEmitter(s.dispatcher, s.logger),
		hub:      s.realtimeHub,
	})

	// Health checks
	s.checks = health.NewRegistry()
	if s.db != nil {
		s.checks.Register("database", health.DatabaseChecker(s.db))
	}
	s.checks.Register("intel", s.intelChecker())
	s.checks.Register("geodata", s.geodataChecker())

	// Tracing (no-op when OTLP_ENDPOINT is unset)
	tracesShutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesShutdown = tracesShutdown
	}

	s.logger.Info("API authentication enabled", "enforced", cfg.AuthRequired)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	if s.cfg.RateLimitBurst > 0 {
		rlCfg.BurstSize = s.cfg.RateLimitBurst
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Live screening feed (what operators watch)
	s.router.GET("/", dashboardHandler)
	s.router.GET("/docs", s.docsRedirectHandler)

	// WebSocket for real-time screening events
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group. Auth middleware resolves keys on every route;
	// enforcement is per-group below.
	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.authMgr))

	// Screening and cache reads. Key-gated when AUTH_REQUIRED is set;
	// open otherwise so a fresh deployment can be exercised immediately.
	core := v1.Group("")
	if s.cfg.AuthRequired {
		core.Use(auth.RequireAuth())
	}
	screening.NewHandler(s.screening).RegisterRoutes(core)

	repHandler := reputation.NewHandler(s.repStore).WithEvents(&reputationEventEmitter{s.realtimeHub})
	repHandler.RegisterRoutes(core)

	// Country metadata and sanctions lookups (public)
	geodata.NewHandler(s.geo).RegisterRoutes(v1)

	// Auth info (public) + whoami (authenticated)
	authHandler := auth.NewHandler(s.authMgr)
	authHandler.RegisterRoutes(v1)

	// Webhook management (applies RequireAuth per route)
	webhooks.NewHandler(s.webhookStore).RegisterRoutes(v1)

	// Operator endpoints: cache seeding and key issuance
	admin := v1.Group("/admin")
	admin.Use(auth.RequireAdmin(s.cfg.AdminAPIKey))
	repHandler.RegisterAdminRoutes(admin)
	authHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ok, statuses := s.checks.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		v := "healthy"
		if !st.Healthy {
			v = "unhealthy"
		}
		if st.Detail != "" {
			v += ": " + st.Detail
		}
		checks[st.Name] = v
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !ok {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) docsRedirectHandler(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, "https://github.com/paydesk/ipintel")
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "ipintel",
		"description": "IP risk screening for payment transactions",
		"version":     "0.1.0",
		"endpoints": gin.H{
			"screen":     "POST /v1/screenings",
			"reputation": "GET /v1/reputation/:ip",
			"countries":  "GET /v1/countries/:code",
			"feed":       "GET /ws",
		},
	})
}

// -----------------------------------------------------------------------------
// Health checkers
// -----------------------------------------------------------------------------

// intelChecker reports the circuit breaker state of the external provider.
// An open circuit means screenings are running degraded, not down.
func (s *Server) intelChecker() health.Checker {
	return func(ctx context.Context) health.Status {
		st := health.Status{Name: "intel", Healthy: true}
		if s.cfg.IntelAPIURL == "" {
			st.Detail = "disabled"
			return st
		}
		if s.breaker.State("intel") == circuitbreaker.StateOpen {
			st.Healthy = false
			st.Detail = "circuit open"
		}
		return st
	}
}

func (s *Server) geodataChecker() health.Checker {
	return func(ctx context.Context) health.Status {
		st := health.Status{Name: "geodata", Healthy: true}
		if n := s.geo.Count(); n > 0 {
			st.Detail = fmt.Sprintf("%d countries", n)
		} else {
			st.Detail = "sanctions list only"
		}
		return st
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Sample connection pool stats for Prometheus
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, stats collector)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if s.cfg.DrainSeconds > 0 {
		time.Sleep(time.Duration(s.cfg.DrainSeconds) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush pending spans
	if s.tracesShutdown != nil {
		if err := s.tracesShutdown(ctx); err != nil {
			s.logger.Warn("trace exporter shutdown failed", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// disabledIntel stands in when no provider is configured. Every cache miss
// degrades rather than failing the screening.
type disabledIntel struct{}

func (disabledIntel) Classify(ctx context.Context, ip string) (*reputation.Record, error) {
	return nil, intel.ErrUnavailable
}

// eventFanout forwards completed screenings to webhook subscribers and
// connected WebSocket clients.
type eventFanout struct {
	webhooks *webhooks.Emitter
	hub      *realtime.Hub
}

func (f *eventFanout) ScreeningCompleted(req *screening.Request, res *screening.Result) {
	f.webhooks.ScreeningCompleted(req, res)

	f.hub.BroadcastScreening(map[string]interface{}{
		"screening_id":     res.ScreeningID,
		"transaction_id":   req.TransactionID,
		"ip_address":       req.IPAddress,
		"user_country":     res.UserCountry,
		"detected_country": res.DetectedCountry,
		"countries_match":  res.CountriesMatch,
		"risk_score":       res.RiskScore,
		"risk_level":       string(res.RiskLevel),
		"should_block":     res.ShouldBlock,
		"recommendation":   res.Recommendation,
	})
}

// reputationEventEmitter adapts realtime.Hub to reputation.EventEmitter
type reputationEventEmitter struct {
	hub *realtime.Hub
}

func (e *reputationEventEmitter) EmitReputationUpdate(data map[string]interface{}) {
	if e.hub != nil {
		e.hub.BroadcastReputationUpdate(data)
	}
}
