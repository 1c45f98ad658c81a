package handlers

import (
	"encoding/json"
	"net/http"

	"cosmossdk.io/log"

	apitypes "github.com/openalpha/simex/api/types"
	"github.com/openalpha/simex/registry"
)

// TeamHandler serves team registration and lookup
type TeamHandler struct {
	registry *registry.Registry
	logger   log.Logger
}

// NewTeamHandler creates a team handler
func NewTeamHandler(reg *registry.Registry, logger log.Logger) *TeamHandler {
	return &TeamHandler{registry: reg, logger: logger.With("handler", "teams")}
}

// HandleRegister handles POST /api/v1/teams/register. The response carries
// the API key the team uses for every subsequent call.
func (h *TeamHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	var req apitypes.RegisterTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body")
		return
	}
	if req.TeamName == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TEAM_NAME", "team_name is required")
		return
	}
	if req.Role == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ROLE", "role is required")
		return
	}

	team, err := h.registry.Register(req.TeamName, req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "REGISTRATION_FAILED", err.Error())
		return
	}

	h.logger.Info("team registered", "team_id", team.ID, "name", team.Name, "role", team.Role)
	writeJSON(w, http.StatusCreated, team)
}
