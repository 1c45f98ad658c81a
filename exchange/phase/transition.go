package phase

import (
	"time"

	"cosmossdk.io/log"
)

// AuctionVenue is the slice of the venue the transition handler drives.
type AuctionVenue interface {
	// ExecuteOpeningAuction clears every pending auction bucket.
	ExecuteOpeningAuction()
	// CancelAllOrders cancels every resting order across all books and any
	// orders still bucketed for an auction.
	CancelAllOrders()
}

// TransitionHandler observes phase changes on each tick and fires the
// associated venue actions exactly once per transition. The first tick only
// establishes the baseline.
type TransitionHandler struct {
	manager *Manager
	venue   AuctionVenue
	logger  log.Logger

	last Type
	seen bool
}

// NewTransitionHandler creates a transition handler
func NewTransitionHandler(manager *Manager, venue AuctionVenue, logger log.Logger) *TransitionHandler {
	return &TransitionHandler{
		manager: manager,
		venue:   venue,
		logger:  logger.With("component", "phase_transition"),
	}
}

// Tick evaluates the phase at now and handles any transition since the
// previous tick. Calling Tick repeatedly within the same phase is a no-op.
func (h *TransitionHandler) Tick(now time.Time) {
	current := h.manager.At(now).Type
	if !h.seen {
		h.last = current
		h.seen = true
		return
	}
	if current == h.last {
		return
	}

	h.logger.Info("phase transition", "from", h.last.String(), "to", current.String())

	switch {
	case h.last == PhasePreOpen && (current == PhaseOpeningAuction || current == PhaseContinuous):
		// Schedules may run the auction as its own window or jump straight
		// into continuous trading; either way the buckets clear here.
		h.venue.ExecuteOpeningAuction()
	case current == PhaseClosed:
		// Regular close, and also a schedule that closes straight out of
		// pre-open with orders still bucketed.
		h.venue.CancelAllOrders()
	}
	h.last = current
}
