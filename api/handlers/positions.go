package handlers

import (
	"net/http"
	"time"

	"cosmossdk.io/log"

	apitypes "github.com/openalpha/simex/api/types"
	"github.com/openalpha/simex/pipeline"
)

// PositionHandler serves position snapshots
type PositionHandler struct {
	positions *pipeline.PositionStore
	auth      TeamAuthenticator
	logger    log.Logger
}

// NewPositionHandler creates a position handler
func NewPositionHandler(positions *pipeline.PositionStore, auth TeamAuthenticator, logger log.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		auth:      auth,
		logger:    logger.With("handler", "positions"),
	}
}

// HandlePositions handles GET /api/v1/positions
func (h *PositionHandler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	team := authenticate(w, r, h.auth)
	if team == nil {
		return
	}

	writeJSON(w, http.StatusOK, apitypes.PositionsResponse{
		TeamID:      team.ID,
		Positions:   h.positions.GetAll(team.ID),
		LastUpdated: time.Now(),
	})
}
