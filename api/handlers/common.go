package handlers

import (
	"encoding/json"
	"net/http"

	apitypes "github.com/openalpha/simex/api/types"
	"github.com/openalpha/simex/registry"
)

// TeamAuthenticator resolves the X-API-Key header to a team
type TeamAuthenticator interface {
	Authenticate(apiKey string) (*registry.Team, error)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apitypes.ErrorResponse(code, message))
}

// authenticate resolves the request's API key. A nil return means the
// 401 response was already written.
func authenticate(w http.ResponseWriter, r *http.Request, auth TeamAuthenticator) *registry.Team {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "MISSING_API_KEY", "X-API-Key header is required")
		return nil
	}
	team, err := auth.Authenticate(apiKey)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_API_KEY", "unknown API key")
		return nil
	}
	return team
}
