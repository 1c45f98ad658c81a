package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cosmossdk.io/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openalpha/simex/api/handlers"
	"github.com/openalpha/simex/api/middleware"
	"github.com/openalpha/simex/api/websocket"
	"github.com/openalpha/simex/exchange/venue"
	"github.com/openalpha/simex/metrics"
	"github.com/openalpha/simex/pipeline"
	"github.com/openalpha/simex/registry"
)

// Config contains server configuration
type Config struct {
	Host             string
	Port             int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	RequestTimeout   time.Duration
	DisableRateLimit bool // For testing purposes
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// Server is the REST and WebSocket front end. Order-path requests go
// through the coordinator and pipeline; market data is read straight off
// the venue.
type Server struct {
	httpServer *http.Server
	config     *Config
	logger     log.Logger

	hub         *websocket.Hub
	rateLimiter *middleware.RateLimiter

	teamHandler     *handlers.TeamHandler
	orderHandler    *handlers.OrderHandler
	positionHandler *handlers.PositionHandler
	marketHandler   *handlers.MarketHandler
}

// NewServer wires the handlers over the exchange services
func NewServer(
	config *Config,
	reg *registry.Registry,
	v *venue.Venue,
	coordinator *pipeline.Coordinator,
	pipe *pipeline.Pipeline,
	hub *websocket.Hub,
	logger log.Logger,
) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		config:      config,
		logger:      logger.With("component", "api_server"),
		hub:         hub,
		rateLimiter: middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
	}

	s.teamHandler = handlers.NewTeamHandler(reg, logger)
	s.orderHandler = handlers.NewOrderHandler(coordinator, pipe.Queues(), v, reg, config.RequestTimeout, logger)
	s.positionHandler = handlers.NewPositionHandler(pipe.Positions(), reg, logger)
	s.marketHandler = handlers.NewMarketHandler(v, logger)

	return s
}

// Start builds the route table and serves until Stop. Blocking.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/v1/teams/register", s.teamHandler.HandleRegister)

	mux.HandleFunc("/api/v1/orders", s.orderHandler.HandleOrders)
	mux.HandleFunc("/api/v1/orders/", s.orderHandler.HandleOrder)

	mux.HandleFunc("/api/v1/positions", s.positionHandler.HandlePositions)

	mux.HandleFunc("/api/v1/instruments", s.marketHandler.HandleInstruments)
	mux.HandleFunc("/api/v1/depth", s.marketHandler.HandleDepth)
	mux.HandleFunc("/api/v1/trades", s.marketHandler.HandleTrades)
	mux.HandleFunc("/api/v1/phase", s.marketHandler.HandlePhase)

	mux.HandleFunc("/ws", s.hub.HandleUpgrade)

	mux.Handle("/metrics", promhttp.Handler())

	// Middleware chain: CORS -> RateLimit -> Metrics -> Handler
	var handler http.Handler = metricsMiddleware(mux)
	if !s.config.DisableRateLimit {
		handler = middleware.RateLimit(s.rateLimiter)(handler)
	}
	handler = corsMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("API server starting", "addr", addr, "rate_limit_disabled", s.config.DisableRateLimit)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server and drops WS connections
func (s *Server) Stop(ctx context.Context) error {
	s.rateLimiter.Stop()
	err := s.httpServer.Shutdown(ctx)
	s.hub.Close()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":%d}`, time.Now().Unix())
}

// statusRecorder captures the response code for request metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.GetCollector().RecordAPIRequest(r.Method, r.URL.Path, fmt.Sprintf("%d", rec.status), timer.ElapsedMs())
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
