package pipeline

import (
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"

	apitypes "github.com/openalpha/simex/api/types"
	"github.com/openalpha/simex/metrics"
)

// Request lifecycle statuses tracked by the coordinator
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusValidating RequestStatus = "validating"
	StatusMatching   RequestStatus = "matching"
	StatusSettling   RequestStatus = "settling"
	StatusCompleted  RequestStatus = "completed"
	StatusError      RequestStatus = "error"
)

// Error codes synthesised by the coordinator itself
const (
	CodeProcessingTimeout = "PROCESSING_TIMEOUT"
	CodeServiceOverloaded = "SERVICE_OVERLOADED"
	CodeServiceShutdown   = "SERVICE_SHUTDOWN"
	CodeInternalError     = "INTERNAL_ERROR"
)

var (
	// ErrCoordinatorOverloaded means the pending-request cap is reached
	ErrCoordinatorOverloaded = fmt.Errorf("coordinator at capacity")
	// ErrCoordinatorShutdown means the coordinator no longer accepts requests
	ErrCoordinatorShutdown = fmt.Errorf("coordinator shut down")
)

// statusRank orders the non-terminal statuses so updates only move forward
var statusRank = map[RequestStatus]int{
	StatusPending:    1,
	StatusValidating: 2,
	StatusMatching:   3,
	StatusSettling:   4,
}

// CoordinatorConfig tunes the request coordinator
type CoordinatorConfig struct {
	DefaultTimeout  time.Duration
	MaxPending      int
	CleanupInterval time.Duration
	RequestIDPrefix string
}

// DefaultCoordinatorConfig returns sane defaults for a single venue
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		DefaultTimeout:  5 * time.Second,
		MaxPending:      10000,
		CleanupInterval: 30 * time.Second,
		RequestIDPrefix: "REQ",
	}
}

type pendingRequest struct {
	teamID    string
	orderID   string
	status    RequestStatus
	done      chan *apitypes.ApiResponse
	result    *apitypes.ApiResponse
	notified  bool
	createdAt time.Time
	doneAt    time.Time
}

// Coordinator bridges synchronous HTTP handlers and the asynchronous
// pipeline. Handlers register a request, enqueue it, and block on
// WaitForCompletion; the pipeline delivers the result via NotifyCompletion.
// Exactly the first notification per request wins.
type Coordinator struct {
	cfg    CoordinatorConfig
	logger log.Logger

	mu       sync.Mutex
	pending  map[string]*pendingRequest
	nextID   uint64
	shutdown bool

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewCoordinator creates a coordinator and starts its cleanup sweeper
func NewCoordinator(cfg CoordinatorConfig, logger log.Logger) *Coordinator {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultCoordinatorConfig().DefaultTimeout
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultCoordinatorConfig().MaxPending
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCoordinatorConfig().CleanupInterval
	}
	if cfg.RequestIDPrefix == "" {
		cfg.RequestIDPrefix = DefaultCoordinatorConfig().RequestIDPrefix
	}

	c := &Coordinator{
		cfg:         cfg,
		logger:      logger.With("component", "coordinator"),
		pending:     make(map[string]*pendingRequest),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// RegisterRequest allocates a request id and its completion slot for a team
func (c *Coordinator) RegisterRequest(teamID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return "", ErrCoordinatorShutdown
	}
	if len(c.pending) >= c.cfg.MaxPending {
		return "", ErrCoordinatorOverloaded
	}

	c.nextID++
	id := fmt.Sprintf("%s-%d", c.cfg.RequestIDPrefix, c.nextID)
	c.pending[id] = &pendingRequest{
		teamID:    teamID,
		status:    StatusPending,
		done:      make(chan *apitypes.ApiResponse, 1),
		createdAt: time.Now(),
	}
	metrics.GetCollector().CoordinatorPending.Set(float64(len(c.pending)))
	return id, nil
}

// WaitForCompletion blocks until the request completes or the timeout
// elapses. Consuming the result frees the request slot either way: on
// timeout a PROCESSING_TIMEOUT response is synthesised, and a late pipeline
// notification then finds nothing.
func (c *Coordinator) WaitForCompletion(requestID string, timeout time.Duration) *apitypes.ApiResponse {
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}

	c.mu.Lock()
	req, ok := c.pending[requestID]
	c.mu.Unlock()
	if !ok {
		return apitypes.ErrorResponse(CodeInternalError, "unknown request id "+requestID)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-req.done:
		c.release(requestID)
		return resp
	case <-timer.C:
		c.mu.Lock()
		defer c.mu.Unlock()
		// The notifier may have won the race after the timer fired.
		select {
		case resp := <-req.done:
			delete(c.pending, requestID)
			metrics.GetCollector().CoordinatorPending.Set(float64(len(c.pending)))
			return resp
		default:
		}
		delete(c.pending, requestID)
		metrics.GetCollector().CoordinatorTimeouts.Inc()
		metrics.GetCollector().CoordinatorPending.Set(float64(len(c.pending)))
		c.logger.Warn("request timed out", "request_id", requestID, "timeout", timeout)
		return apitypes.ErrorResponse(CodeProcessingTimeout, "request still processing after "+timeout.String())
	}
}

// release frees a settled request slot once its waiter has the result
func (c *Coordinator) release(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[requestID]; !ok {
		return
	}
	delete(c.pending, requestID)
	metrics.GetCollector().CoordinatorPending.Set(float64(len(c.pending)))
}

// NotifyCompletion delivers the pipeline's result for a request. The first
// notification settles the request; redundant ones return true without
// mutating the recorded result. Unknown ids return false.
func (c *Coordinator) NotifyCompletion(requestID string, resp *apitypes.ApiResponse) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.pending[requestID]
	if !ok {
		c.logger.Debug("notify for unknown request", "request_id", requestID)
		return false
	}
	if req.notified {
		return true
	}
	req.notified = true
	if resp.Success {
		req.status = StatusCompleted
	} else {
		req.status = StatusError
	}
	req.result = resp
	req.orderID = resp.OrderID
	req.doneAt = time.Now()
	req.done <- resp
	c.logger.Debug("request settled",
		"request_id", requestID, "team_id", req.teamID, "order_id", req.orderID,
		"processing_ms", req.doneAt.Sub(req.createdAt).Milliseconds())
	return true
}

// UpdateStatus records pipeline progress. Returns false when the request is
// unknown or already terminal; a backwards transition is a no-op that still
// reports true.
func (c *Coordinator) UpdateStatus(requestID string, status RequestStatus) bool {
	rank, ok := statusRank[status]
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	req, found := c.pending[requestID]
	if !found || req.notified {
		return false
	}
	if statusRank[req.status] >= rank {
		return true
	}
	req.status = status
	return true
}

// GetRequestStatus reports a pending request's status
func (c *Coordinator) GetRequestStatus(requestID string) (RequestStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.pending[requestID]
	if !ok {
		return "", false
	}
	return req.status, true
}

// PendingCount reports how many request slots are held
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Shutdown stops intake, settles every still-pending request with a
// SERVICE_SHUTDOWN response, and stops the sweeper.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	for id, req := range c.pending {
		if req.notified {
			continue
		}
		req.notified = true
		req.status = StatusError
		req.result = apitypes.ErrorResponse(CodeServiceShutdown, "service shutting down")
		req.doneAt = time.Now()
		req.done <- req.result
		c.logger.Info("settled pending request on shutdown", "request_id", id)
	}
	c.mu.Unlock()

	close(c.stopCleanup)
	<-c.cleanupDone
}

func (c *Coordinator) cleanupLoop() {
	defer close(c.cleanupDone)

	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupCompleted()
		case <-c.stopCleanup:
			return
		}
	}
}

// cleanupCompleted drops settled requests older than the cleanup interval.
// Waiters read the buffered done channel, so dropping the map entry is safe.
func (c *Coordinator) cleanupCompleted() {
	cutoff := time.Now().Add(-c.cfg.CleanupInterval)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, req := range c.pending {
		if req.notified && req.doneAt.Before(cutoff) {
			delete(c.pending, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.GetCollector().CoordinatorPending.Set(float64(len(c.pending)))
		c.logger.Debug("swept settled requests", "removed", removed, "pending", len(c.pending))
	}
}
