// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
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

	"github.com/tapbridge/tapbridge/internal/assets"
	"github.com/tapbridge/tapbridge/internal/config"
	"github.com/tapbridge/tapbridge/internal/idgen"
	"github.com/tapbridge/tapbridge/internal/ledger"
	"github.com/tapbridge/tapbridge/internal/lndclient"
	"github.com/tapbridge/tapbridge/internal/logging"
	"github.com/tapbridge/tapbridge/internal/metrics"
	"github.com/tapbridge/tapbridge/internal/ratelimit"
	"github.com/tapbridge/tapbridge/internal/realtime"
	"github.com/tapbridge/tapbridge/internal/reconcile"
	"github.com/tapbridge/tapbridge/internal/security"
	"github.com/tapbridge/tapbridge/internal/tapdclient"
	"github.com/tapbridge/tapbridge/internal/validation"
)

// Pinger checks daemon reachability for health reporting.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	channels     assets.ChannelLister
	nodes        assets.NodeInfoSource
	assetLister  assets.AssetLister
	manager      *assets.Manager
	engine       *reconcile.Engine
	ledgerStore  ledger.Store
	syncTimer    *reconcile.Timer
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	syncLimiter  *ratelimit.Limiter
	lndPing      Pinger
	tapdPing     Pinger
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

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

// WithDaemons injects daemon clients (for testing).
func WithDaemons(channels assets.ChannelLister, nodes assets.NodeInfoSource, lister assets.AssetLister) Option {
	return func(s *Server) {
		s.channels = channels
		s.nodes = nodes
		s.assetLister = lister
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set daemon fakes/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.ledgerStore = ledger.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.ledgerStore = ledger.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Create daemon clients if not injected
	if s.channels == nil {
		lnd := lndclient.New(cfg)
		s.channels = lnd
		s.nodes = lnd
		s.lndPing = lnd
	}
	if s.assetLister == nil {
		tapd := tapdclient.New(cfg)
		s.assetLister = tapd
		s.tapdPing = tapd
	}

	resolver, err := assets.NewAliasResolver(s.nodes, cfg.AliasCacheSize, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create alias resolver: %w", err)
	}
	s.manager = assets.NewManager(s.channels, s.assetLister, resolver, cfg.AssetCacheTTL, s.logger)
	s.engine = reconcile.NewEngine(s.manager, s.ledgerStore, logging.Component(s.logger, "reconcile"))

	if cfg.SyncInterval > 0 {
		s.syncTimer = reconcile.NewTimer(s.engine, cfg.DefaultWalletID, cfg.SyncInterval,
			logging.Component(s.logger, "sync-timer"))
		s.logger.Info("background sync enabled",
			"wallet_id", cfg.DefaultWalletID, "interval", cfg.SyncInterval)
	}

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.syncLimiter = ratelimit.New(ratelimit.SyncConfig())

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

	// Security headers and CORS
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request body size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting by client IP
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

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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

func generateRequestID() string {
	return idgen.Hex(8)
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	v1 := s.router.Group("/api/v1")

	v1.GET("/assets", s.listAssetsHandler)
	v1.GET("/channel-assets", s.listChannelAssetsHandler)

	wallets := v1.Group("/wallets/:wallet_id", validation.WalletParamMiddleware())
	wallets.GET("/balances", s.walletBalancesHandler)
	wallets.GET("/transactions", validation.AssetIDQueryMiddleware(), s.walletTransactionsHandler)
	wallets.POST("/sync", s.syncLimiter.Middleware(), s.syncWalletHandler)

	v1.GET("/realtime/stats", s.realtimeStatsHandler)
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse is the /healthz payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks["lnd"] = pingStatus(ctx, s.lndPing)
	checks["tapd"] = pingStatus(ctx, s.tapdPing)
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func pingStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "skipped"
	}
	if err := p.Ping(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "tapbridge",
		"description": "Taproot asset channel aggregation and balance reconciliation",
		"version":     "0.1.0",
	})
}

func (s *Server) realtimeStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
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

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"lnd", s.cfg.LNDHost,
			"tapd", s.cfg.TapdHost,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)

	if s.syncTimer != nil {
		go s.syncTimer.Start(runCtx)
	}

	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

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

// Shutdown gracefully stops the server and its background goroutines.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, sync timer)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.syncTimer != nil {
		s.syncTimer.Stop()
		s.logger.Info("sync timer stopped")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.syncLimiter != nil {
		s.syncLimiter.Stop()
	}

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
