package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/simex/registry"
)

func registerTeam(t *testing.T, h *TeamHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/teams/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)
	return rec
}

func TestHandleRegister(t *testing.T) {
	logger := log.NewNopLogger()
	reg := registry.New([]string{"market_maker", "hedge_fund"}, logger)
	h := NewTeamHandler(reg, logger)

	rec := registerTeam(t, h, `{"team_name":"alpha","role":"market_maker"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var team registry.Team
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&team))
	require.NotEmpty(t, team.ID)
	require.NotEmpty(t, team.APIKey, "registration is the only place the key is disclosed")
	require.Equal(t, "market_maker", team.Role)

	// The returned credentials authenticate.
	got, err := reg.Authenticate(team.APIKey)
	require.NoError(t, err)
	require.Equal(t, team.ID, got.ID)
}

func TestHandleRegisterRejections(t *testing.T) {
	logger := log.NewNopLogger()
	reg := registry.New([]string{"market_maker"}, logger)
	h := NewTeamHandler(reg, logger)

	rec := registerTeam(t, h, `{"team_name":"alpha","role":"market_maker"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"DuplicateName", `{"team_name":"alpha","role":"market_maker"}`, "REGISTRATION_FAILED"},
		{"UnsupportedRole", `{"team_name":"beta","role":"retail"}`, "REGISTRATION_FAILED"},
		{"MissingName", `{"role":"market_maker"}`, "MISSING_TEAM_NAME"},
		{"MissingRole", `{"team_name":"gamma"}`, "MISSING_ROLE"},
		{"BadJSON", `{`, "INVALID_JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := registerTeam(t, h, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tc.code, decodeResponse(t, rec).ErrorCode)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/teams/register", nil)
	rec = httptest.NewRecorder()
	h.HandleRegister(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
