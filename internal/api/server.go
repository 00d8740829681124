package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cryptoctl/tradeengine/internal/adapter"
	"github.com/cryptoctl/tradeengine/internal/audit"
	"github.com/cryptoctl/tradeengine/internal/db"
	"github.com/cryptoctl/tradeengine/internal/eventbus"
	"github.com/cryptoctl/tradeengine/internal/risk"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Server represents the REST API server
type Server struct {
	router  *gin.Engine
	db      *db.DB
	riskSvc *risk.Service

	// riskGW and execAdapter are the live order path (spec.md §4.1/§4.2):
	// handlePlaceOrder routes every incoming order through riskGW.Submit,
	// which itself owns the adapter call. execAdapter is kept directly
	// only for read-only queries (balance) that don't need a gateway
	// admission check. Both are nil in configurations that only serve
	// read endpoints (e.g. a backtest-only deployment).
	riskGW      *risk.Gateway
	execAdapter adapter.Adapter
	events      *eventbus.Bus

	strategies *StrategyHandler
	decisions  *DecisionHandler
	feedback   *FeedbackHandler

	hub              *Hub
	wsAllowedOrigins []string
	wsProduction     bool

	rateLimiter *RateLimiterMiddleware
	auditLogger *audit.Logger

	addr   string
	server *http.Server
}

// Config contains server configuration
type Config struct {
	Host             string
	Port             int
	DB               *db.DB
	RiskGateway      *risk.Gateway
	Adapter          adapter.Adapter
	EventBus         *eventbus.Bus
	WSAllowedOrigins []string
	WSProduction     bool
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // TODO: Configure allowed origins
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	server := &Server{
		router:           router,
		db:               config.DB,
		riskSvc:          risk.NewService(),
		riskGW:           config.RiskGateway,
		execAdapter:      config.Adapter,
		events:           config.EventBus,
		wsAllowedOrigins: config.WSAllowedOrigins,
		wsProduction:     config.WSProduction,
		addr:             addr,
	}
	server.hub = NewHub(server)
	go server.hub.Run()

	server.rateLimiter = NewRateLimiterMiddleware(DefaultRateLimiterConfig())
	server.rateLimiter.StartCleanupWorker(5 * time.Minute)
	router.Use(server.rateLimiter.GlobalMiddleware())

	if config.DB != nil {
		server.auditLogger = audit.NewLogger(config.DB.Pool(), true)
		router.Use(AuditLoggingMiddleware(server.auditLogger))
		strategyRepo := db.NewStrategyRepository(config.DB)
		server.strategies = NewStrategyHandlerWithDB(strategyRepo, server.auditLogger)
		server.decisions = NewDecisionHandler(NewDecisionRepository(config.DB.Pool()))
		server.feedback = NewFeedbackHandler(NewFeedbackRepository(config.DB.Pool()))
	} else {
		server.strategies = NewStrategyHandler()
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// SetOrderPath wires the Risk Gateway and Execution Adapter into an
// already-constructed Server. Entrypoints that build the control
// plane after the HTTP router (so the adapter can connect first) call
// this instead of passing both through Config.
func (s *Server) SetOrderPath(gw *risk.Gateway, exec adapter.Adapter) {
	s.riskGW = gw
	s.execAdapter = exec
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}
