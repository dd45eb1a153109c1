package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/perfect8/shopgw/internal/config"
	"github.com/perfect8/shopgw/internal/observability"
	"github.com/perfect8/shopgw/internal/routes"
	"github.com/perfect8/shopgw/internal/servicekey"
	"github.com/perfect8/shopgw/internal/trust"
)

// Server is the HTTP server a downstream shop service runs on: gin with
// the trust middleware installed and the platform's endpoint guards.
type Server struct {
	config     *config.ServiceConfig
	engine     *gin.Engine
	server     *http.Server
	authorizer *Authorizer
	logger     observability.Logger
	metrics    *Metrics
}

// ServerOption is a functional option for the server.
type ServerOption func(*Server)

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger observability.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithServerMetrics sets the metrics for the server.
func WithServerMetrics(metrics *Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// New creates a service server from validated configuration.
func New(cfg *config.ServiceConfig, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	s := &Server{
		config: cfg,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	var registry servicekey.Registry
	if len(cfg.ServiceKeys) > 0 {
		var err error
		registry, err = servicekey.NewRegistry(cfg.ServiceKeys)
		if err != nil {
			return nil, fmt.Errorf("service keys: %w", err)
		}
	}

	// Health and documentation endpoints bypass trust resolution; the
	// service evaluates its own list rather than trusting the edge's.
	bypassRules := append(routes.CommonServiceRules(), cfg.PublicRoutes...)
	bypass, err := routes.NewClassifier(bypassRules)
	if err != nil {
		return nil, fmt.Errorf("public routes: %w", err)
	}

	trustMW := NewTrust(registry,
		WithBypass(bypass),
		WithTrustLogger(s.logger),
		WithTrustMetrics(s.metrics),
	)

	s.authorizer = NewAuthorizer(
		WithAuthorizerLogger(s.logger),
		WithAuthorizerMetrics(s.metrics),
	)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger, s.metrics),
		trustMW.Middleware(),
	)

	s.engine = engine
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
	}

	return s, nil
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("service listening",
		observability.String("service", s.config.ServiceName),
		observability.String("address", s.server.Addr),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("service server: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("service shutting down",
		observability.String("service", s.config.ServiceName),
	)
	return s.server.Shutdown(ctx)
}

// product is a catalog entry served by the demo shop endpoints.
type product struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

var catalog = []product{
	{ID: 1, Name: "Woodturning Chisel Set", Price: 89.50},
	{ID: 2, Name: "Bowl Gouge 13mm", Price: 42.00},
	{ID: 3, Name: "Sanding Sealer 500ml", Price: 12.75},
}

// registerRoutes wires the shop endpoints and their guards.
func (s *Server) registerRoutes() {
	s.engine.GET("/health/live", s.handleHealth)
	s.engine.GET("/health/ready", s.handleHealth)
	s.engine.GET("/actuator/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/products", s.handleListProducts)
		api.GET("/products/:id", s.handleGetProduct)

		api.POST("/products", s.authorizer.RequireRole(trust.RoleAdmin), s.handleCreateProduct)
		api.DELETE("/products/:id", s.authorizer.RequireRole(trust.RoleAdmin), s.handleDeleteProduct)

		api.GET("/orders/me", s.authorizer.RequireAuthenticated(), s.handleMyOrders)
		api.GET("/me", s.authorizer.RequireAuthenticated(), s.handleWhoAmI)
	}

	internal := s.engine.Group("/internal")
	{
		internal.GET("/inventory", s.authorizer.RequireRole(trust.RoleService), s.handleInventory)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": s.config.ServiceName})
}

func (s *Server) handleListProducts(c *gin.Context) {
	c.JSON(http.StatusOK, catalog)
}

func (s *Server) handleGetProduct(c *gin.Context) {
	for _, p := range catalog {
		if fmt.Sprintf("%d", p.ID) == c.Param("id") {
			c.JSON(http.StatusOK, p)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
}

func (s *Server) handleCreateProduct(c *gin.Context) {
	var p product
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product"})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleDeleteProduct(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMyOrders(c *gin.Context) {
	tc, _ := trust.FromContext(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"user":   tc.Principal.DisplayName,
		"orders": []gin.H{},
	})
}

func (s *Server) handleWhoAmI(c *gin.Context) {
	tc, _ := trust.FromContext(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"id":     tc.Principal.ID,
		"name":   tc.Principal.DisplayName,
		"roles":  tc.Principal.Roles,
		"level":  tc.Principal.Level,
		"source": tc.Source,
	})
}

func (s *Server) handleInventory(c *gin.Context) {
	type stock struct {
		ProductID int64 `json:"productId"`
		InStock   int   `json:"inStock"`
	}
	c.JSON(http.StatusOK, []stock{
		{ProductID: 1, InStock: 14},
		{ProductID: 2, InStock: 3},
		{ProductID: 3, InStock: 120},
	})
}
