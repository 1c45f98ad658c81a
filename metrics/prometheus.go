package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Singleton collector
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds the exchange metrics
type Collector struct {
	// Order metrics
	OrdersTotal  *prometheus.CounterVec
	OrderLatency *prometheus.HistogramVec

	// Validation metrics
	ValidationRejects *prometheus.CounterVec

	// Trade metrics
	TradesTotal *prometheus.CounterVec
	TradeVolume *prometheus.CounterVec

	// Pipeline metrics
	QueueDepth          *prometheus.GaugeVec
	CoordinatorPending  prometheus.Gauge
	CoordinatorTimeouts prometheus.Counter

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec

	// API metrics
	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
	RateLimitHits     prometheus.Counter

	// Exchange state
	CurrentPhase *prometheus.GaugeVec
}

// GetCollector returns the singleton metrics collector
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

func newCollector() *Collector {
	c := &Collector{}

	c.OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simex",
			Subsystem: "orders",
			Name:      "total",
			Help:      "Total number of orders submitted",
		},
		[]string{"instrument", "side", "type", "status"},
	)

	c.OrderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simex",
			Subsystem: "orders",
			Name:      "latency_ms",
			Help:      "Order processing latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"kind"},
	)

	c.ValidationRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simex",
			Subsystem: "validation",
			Name:      "rejects_total",
			Help:      "Total validation rejections by constraint error code",
		},
		[]string{"role", "code"},
	)

	c.TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simex",
			Subsystem: "trades",
			Name:      "total",
			Help:      "Total number of trades executed",
		},
		[]string{"instrument", "mode"},
	)

	c.TradeVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simex",
			Subsystem: "trades",
			Name:      "volume_contracts",
			Help:      "Total traded volume in contracts",
		},
		[]string{"instrument", "mode"},
	)

	c.QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "simex",
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Depth of each inter-stage queue",
		},
		[]string{"queue"},
	)

	c.CoordinatorPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "simex",
			Subsystem: "coordinator",
			Name:      "pending_requests",
			Help:      "Requests registered and not yet settled",
		},
	)

	c.CoordinatorTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "simex",
			Subsystem: "coordinator",
			Name:      "timeouts_total",
			Help:      "Requests that hit the processing deadline",
		},
	)

	c.WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "simex",
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of live team connections",
		},
	)

	c.WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simex",
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "Total WebSocket messages sent",
		},
		[]string{"type"},
	)

	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simex",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total API requests",
		},
		[]string{"method", "path", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simex",
			Subsystem: "api",
			Name:      "request_latency_ms",
			Help:      "API request latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"method", "path"},
	)

	c.RateLimitHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "simex",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the HTTP rate limiter",
		},
	)

	c.CurrentPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "simex",
			Subsystem: "exchange",
			Name:      "phase",
			Help:      "Current trading phase (1 for the active phase, 0 otherwise)",
		},
		[]string{"phase"},
	)

	c.registerAll()
	return c
}

func (c *Collector) registerAll() {
	prometheus.MustRegister(c.OrdersTotal)
	prometheus.MustRegister(c.OrderLatency)
	prometheus.MustRegister(c.ValidationRejects)
	prometheus.MustRegister(c.TradesTotal)
	prometheus.MustRegister(c.TradeVolume)
	prometheus.MustRegister(c.QueueDepth)
	prometheus.MustRegister(c.CoordinatorPending)
	prometheus.MustRegister(c.CoordinatorTimeouts)
	prometheus.MustRegister(c.WSConnectionsActive)
	prometheus.MustRegister(c.WSMessagesTotal)
	prometheus.MustRegister(c.APIRequestsTotal)
	prometheus.MustRegister(c.APIRequestLatency)
	prometheus.MustRegister(c.RateLimitHits)
	prometheus.MustRegister(c.CurrentPhase)
}

// ============ Recording Helpers ============

// RecordOrder records an order outcome
func (c *Collector) RecordOrder(instrument, side, orderType, status string) {
	c.OrdersTotal.WithLabelValues(instrument, side, orderType, status).Inc()
}

// RecordReject records a validation rejection
func (c *Collector) RecordReject(role, code string) {
	c.ValidationRejects.WithLabelValues(role, code).Inc()
}

// RecordTrade records an executed trade. mode is "continuous" or "batch".
func (c *Collector) RecordTrade(instrument, mode string, quantity int64) {
	c.TradesTotal.WithLabelValues(instrument, mode).Inc()
	c.TradeVolume.WithLabelValues(instrument, mode).Add(float64(quantity))
}

// RecordAPIRequest records an API request
func (c *Collector) RecordAPIRequest(method, path, status string, latencyMs float64) {
	c.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, path).Observe(latencyMs)
}

// SetQueueDepth updates one queue gauge
func (c *Collector) SetQueueDepth(queue string, depth int) {
	c.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// SetPhase marks the active phase, clearing the others
func (c *Collector) SetPhase(active string, all []string) {
	for _, p := range all {
		v := 0.0
		if p == active {
			v = 1.0
		}
		c.CurrentPhase.WithLabelValues(p).Set(v)
	}
}

// Timer is a helper for measuring latency
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed time in milliseconds
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
