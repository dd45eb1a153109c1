package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/perfect8/shopgw/internal/config"
	"github.com/perfect8/shopgw/internal/middleware"
	"github.com/perfect8/shopgw/internal/observability"
	"github.com/perfect8/shopgw/internal/routes"
	"github.com/perfect8/shopgw/internal/token"
)

// Gateway assembles the edge: codec, route classifier, auth middleware
// and reverse proxy behind one HTTP server.
type Gateway struct {
	config  *config.GatewayConfig
	logger  observability.Logger
	metrics *Metrics
	tracer  *observability.Tracer
	server  *http.Server
	handler http.Handler
}

// GatewayOption is a functional option for the gateway.
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the logger for the gateway.
func WithGatewayLogger(logger observability.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithGatewayMetrics sets the metrics for the gateway.
func WithGatewayMetrics(metrics *Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

// WithGatewayTracer sets the tracer for the gateway.
func WithGatewayTracer(tracer *observability.Tracer) GatewayOption {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

// New creates a gateway from validated configuration.
func New(cfg *config.GatewayConfig, opts ...GatewayOption) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	g := &Gateway{
		config: cfg,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	codec, err := token.NewCodec(cfg.Token.CodecConfig(), token.WithCodecLogger(g.logger))
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	classifier, err := routes.NewClassifier(cfg.Routes)
	if err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}

	proxy, err := NewProxy(cfg.Backends,
		WithProxyLogger(g.logger),
		WithProxyMetrics(g.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}

	auth, err := NewEdgeAuth(codec, classifier,
		WithEdgeAuthLogger(g.logger),
		WithEdgeAuthMetrics(g.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("edge auth: %w", err)
	}

	// Outermost first: recover, tag, log, trace, cors, authenticate,
	// proxy.
	var handler http.Handler = proxy
	handler = auth.Middleware()(handler)
	if cfg.CORS != nil {
		handler = middleware.CORS(*cfg.CORS)(handler)
	}
	if g.tracer != nil {
		handler = observability.TracingMiddleware(g.tracer)(handler)
	}
	handler = middleware.Logging(g.logger)(handler)
	handler = middleware.RequestID()(handler)
	handler = middleware.Recovery(g.logger)(handler)
	g.handler = handler

	g.server = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
	}

	return g, nil
}

// Handler returns the assembled handler chain.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Start runs the HTTP server until it is shut down.
func (g *Gateway) Start() error {
	g.logger.Info("gateway listening",
		observability.String("address", g.server.Addr),
		observability.Int("backends", len(g.config.Backends)),
	)

	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(ctx)
}
