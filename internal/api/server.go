// Package api exposes the rule builder over HTTP: rule CRUD, structural
// edit operations, validation, on-demand evaluation, and a WebSocket
// stream of evaluation events for the dashboard.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"condition-engine/internal/auth"
	"condition-engine/internal/condition"
	"condition-engine/internal/database"
	"condition-engine/internal/evaluator"
	"condition-engine/internal/events"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	db          *database.DB
	eventBus    *events.EventBus
	eval        *evaluator.Evaluator
	provider    evaluator.MarketDataProvider
	editor      *condition.Editor
	authService *auth.Service
	authEnabled bool
	rateLimiter *RateLimiter
	logger      zerolog.Logger
	config      ServerConfig
	wsHub       *WSHub
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
	AllowedOrigins []string
}

// NewServer creates a new API server. authService may be nil to run the
// API unauthenticated in development.
func NewServer(
	config ServerConfig,
	db *database.DB,
	eventBus *events.EventBus,
	provider evaluator.MarketDataProvider,
	authService *auth.Service,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8088"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		db:          db,
		eventBus:    eventBus,
		eval:        evaluator.New(provider),
		provider:    provider,
		editor:      condition.NewEditor(condition.UUIDGenerator{}),
		authService: authService,
		authEnabled: authService != nil,
		rateLimiter: NewRateLimiter(120, time.Minute),
		logger:      logger.With().Str("component", "api").Logger(),
		config:      config,
	}

	server.setupRoutes()
	server.wsHub = InitWebSocket(eventBus)

	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.authEnabled})
	})
	if s.authEnabled {
		s.router.POST("/api/auth/login", s.handleLogin)
	}

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	if s.authEnabled {
		api.Use(auth.Middleware(s.authService.JWT()))
	}
	{
		api.GET("/catalog/indicators", s.handleGetIndicatorCatalog)

		api.GET("/rules", s.handleListRules)
		api.POST("/rules", s.handleCreateRule)
		api.GET("/rules/:id", s.handleGetRule)
		api.PUT("/rules/:id", s.handleUpdateRule)
		api.DELETE("/rules/:id", s.handleDeleteRule)

		api.POST("/rules/validate", s.handleValidateTree)
		api.POST("/rules/:id/evaluate", s.handleEvaluateRule)
		api.POST("/rules/:id/edits", s.handleEditRule)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// rateLimitMiddleware rate limits requests by method and path.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Request.Method + " " + c.FullPath()
		if !s.rateLimiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth returns server health status.
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	dbStatus := "disabled"
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			status = "degraded"
			dbStatus = "unreachable"
		} else {
			dbStatus = "connected"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now(),
	})
}

// handleLogin exchanges credentials for an access token.
func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
	})
}
