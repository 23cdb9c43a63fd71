package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meditrackpro/payments/pkg/gateway"
	"github.com/meditrackpro/payments/pkg/httputil"
	"github.com/meditrackpro/payments/pkg/observability"
	"github.com/meditrackpro/payments/pkg/orchestrator"
	"github.com/meditrackpro/payments/pkg/pricing"
	"github.com/meditrackpro/payments/pkg/session"
)

// Options configures the API server
type Options struct {
	Intents  orchestrator.IntentService
	Gateway  *gateway.Adapter
	Calc     *pricing.Calculator
	Sessions session.Store

	Orchestrator orchestrator.Config

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Checker *observability.HealthChecker

	// Registry serves GET /metrics when set
	Registry *prometheus.Registry

	// ReceiptCacheSize bounds the LRU of recent checkout outcomes
	ReceiptCacheSize int
}

// Server is the payments HTTP API
type Server struct {
	router   *mux.Router
	logger   *observability.Logger
	metrics  *observability.Metrics
	checker  *observability.HealthChecker
	registry *prometheus.Registry

	intents  orchestrator.IntentService
	gateway  *gateway.Adapter
	calc     *pricing.Calculator
	sessions session.Store
	orchCfg  orchestrator.Config

	// receipts holds the outcome of recent checkouts keyed by gateway
	// order ID, serving the status poll after an async prepaid attempt
	receipts *lru.Cache[string, *CheckoutStatus]
}

// NewServer creates the API server and wires its routes
func NewServer(opts Options) (*Server, error) {
	if opts.Intents == nil {
		return nil, fmt.Errorf("api server requires an intent service client")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("api server requires a gateway adapter")
	}
	if opts.Calc == nil {
		return nil, fmt.Errorf("api server requires a pricing calculator")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("api server requires a session store")
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.ReceiptCacheSize <= 0 {
		opts.ReceiptCacheSize = 1024
	}

	receipts, err := lru.New[string, *CheckoutStatus](opts.ReceiptCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create receipt cache: %w", err)
	}

	s := &Server{
		router:   mux.NewRouter(),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		checker:  opts.Checker,
		registry: opts.Registry,
		intents:  instrumentIntents(opts.Intents, opts.Metrics),
		gateway:  opts.Gateway,
		calc:     opts.Calc,
		sessions: instrumentSessions(opts.Sessions, opts.Metrics),
		orchCfg:  opts.Orchestrator,
		receipts: receipts,
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	middlewares := []mux.MiddlewareFunc{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(1 << 20),
	}
	if s.metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(s.metrics))
	}
	s.router.Use(middlewares...)

	// Checkout routes
	s.router.HandleFunc("/api/plans", s.listPlans).Methods("GET")
	s.router.HandleFunc("/api/checkout", s.startCheckout).Methods("POST")
	s.router.HandleFunc("/api/checkout/{order_id}", s.checkoutStatus).Methods("GET")

	// Gateway webhook
	s.router.HandleFunc("/api/gateway/callback", s.gatewayCallback).Methods("POST")

	// Operational routes
	if s.checker != nil {
		s.router.HandleFunc("/health", s.checker.Readiness).Methods("GET")
		s.router.HandleFunc("/health/live", s.checker.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", s.checker.Readiness).Methods("GET")
	}
	if s.registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods("GET")
	}
}

// Router returns the configured router for mounting in an http.Server
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// newOrchestrator builds the per-attempt orchestrator from server deps
func (s *Server) newOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(s.intents, s.gateway, s.calc, s.sessions, s.orchCfg)
}
