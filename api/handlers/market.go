package handlers

import (
	"net/http"
	"strconv"
	"time"

	"cosmossdk.io/log"

	apitypes "github.com/openalpha/simex/api/types"
	"github.com/openalpha/simex/exchange/book"
	"github.com/openalpha/simex/exchange/venue"
)

const defaultDepthLevels = 10

// MarketHandler serves public market data: instruments, depth, trades and
// the current phase. No authentication; trade prints omit counterparties.
type MarketHandler struct {
	venue  *venue.Venue
	logger log.Logger
}

// NewMarketHandler creates a market data handler
func NewMarketHandler(v *venue.Venue, logger log.Logger) *MarketHandler {
	return &MarketHandler{venue: v, logger: logger.With("handler", "market")}
}

// HandleInstruments handles GET /api/v1/instruments
func (h *MarketHandler) HandleInstruments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	instruments := h.venue.Instruments()
	views := make([]apitypes.InstrumentView, 0, len(instruments))
	for _, inst := range instruments {
		view := apitypes.InstrumentView{
			Symbol:     inst.Symbol,
			Underlying: inst.Underlying,
		}
		if inst.OptionType != "" {
			view.OptionType = string(inst.OptionType)
			view.Strike = inst.Strike.String()
			view.Expiry = inst.Expiry.Format(time.RFC3339)
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"instruments": views})
}

// HandleDepth handles GET /api/v1/depth?instrument=SYM&levels=N
func (h *MarketHandler) HandleDepth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	symbol := r.URL.Query().Get("instrument")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "MISSING_INSTRUMENT", "instrument query parameter is required")
		return
	}
	levels := defaultDepthLevels
	if s := r.URL.Query().Get("levels"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LEVELS", "levels must be a positive integer")
			return
		}
		levels = n
	}

	bids, asks, err := h.venue.Depth(symbol, levels)
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_INSTRUMENT", "no such instrument: "+symbol)
		return
	}

	writeJSON(w, http.StatusOK, apitypes.DepthResponse{
		InstrumentID: symbol,
		Bids:         depthViews(bids),
		Asks:         depthViews(asks),
		Timestamp:    time.Now(),
	})
}

func depthViews(levels []book.DepthLevel) []apitypes.DepthLevelView {
	out := make([]apitypes.DepthLevelView, 0, len(levels))
	for _, l := range levels {
		out = append(out, apitypes.DepthLevelView{Price: l.Price.String(), Quantity: l.Quantity})
	}
	return out
}

// HandleTrades handles GET /api/v1/trades?instrument=SYM&limit=N
func (h *MarketHandler) HandleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	symbol := r.URL.Query().Get("instrument")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "MISSING_INSTRUMENT", "instrument query parameter is required")
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = n
	}

	trades, err := h.venue.RecentTrades(symbol, limit)
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_INSTRUMENT", "no such instrument: "+symbol)
		return
	}

	views := make([]apitypes.TradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, apitypes.TradeView{
			TradeID:      t.TradeID,
			InstrumentID: t.InstrumentID,
			Price:        t.Price.String(),
			Quantity:     t.Quantity,
			ExecutedAt:   t.ExecutedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"instrument_id": symbol, "trades": views})
}

// HandlePhase handles GET /api/v1/phase
func (h *MarketHandler) HandlePhase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	state := h.venue.CurrentPhase()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"phase":                state.Type.String(),
		"submission_allowed":   state.SubmissionAllowed,
		"cancellation_allowed": state.CancellationAllowed,
		"matching_enabled":     state.MatchingEnabled,
		"execution":            state.Execution.String(),
	})
}
