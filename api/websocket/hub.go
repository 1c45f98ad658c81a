package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cosmossdk.io/log"

	apitypes "github.com/openalpha/simex/api/types"
	"github.com/openalpha/simex/metrics"
	"github.com/openalpha/simex/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Authenticator resolves an API key to a team. Implemented by the team
// registry.
type Authenticator interface {
	Authenticate(apiKey string) (*registry.Team, error)
}

// SnapshotSource supplies the position snapshot pushed on connect.
// Implemented by the pipeline.
type SnapshotSource interface {
	SnapshotFor(teamID string) apitypes.PositionsResponse
}

// Hub is the per-team connection registry. Every team holds at most one
// socket; a reconnect closes the prior socket and resets the sequence
// counter. All outbound messages are wrapped in a sequenced envelope.
type Hub struct {
	auth      Authenticator
	snapshots SnapshotSource
	logger    log.Logger

	mu      sync.Mutex
	clients map[string]*Client // teamID -> current connection
}

// NewHub creates the connection registry
func NewHub(auth Authenticator, snapshots SnapshotSource, logger log.Logger) *Hub {
	return &Hub{
		auth:      auth,
		snapshots: snapshots,
		logger:    logger.With("component", "ws_hub"),
		clients:   make(map[string]*Client),
	}
}

// HandleUpgrade is the /ws HTTP handler. Auth is an api_key query
// parameter; an authenticated upgrade replaces any prior connection for the
// team and immediately receives a position snapshot.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	apiKey := r.URL.Query().Get("api_key")
	if apiKey == "" {
		http.Error(w, "missing api_key", http.StatusUnauthorized)
		return
	}
	team, err := h.auth.Authenticate(apiKey)
	if err != nil {
		http.Error(w, "invalid api_key", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "team_id", team.ID, "err", err)
		return
	}

	client := newClient(h, conn, team.ID, team.Name)

	h.mu.Lock()
	if prior, ok := h.clients[team.ID]; ok {
		close(prior.send)
	}
	h.clients[team.ID] = client
	metrics.GetCollector().WSConnectionsActive.Set(float64(len(h.clients)))
	h.mu.Unlock()

	go client.writePump()
	go client.readPump()

	h.logger.Info("team connected", "team_id", team.ID, "team_name", team.Name)

	_ = h.Send(team.ID, apitypes.MsgConnectionStatus, map[string]string{"status": "connected"})
	if h.snapshots != nil {
		_ = h.Send(team.ID, apitypes.MsgPositionSnapshot, h.snapshots.SnapshotFor(team.ID))
	}
}

// Send delivers one message to a team's current connection. The envelope's
// sequence number increases strictly per connection and messages are queued
// in sequence order. A missing connection is not an error; a full send
// buffer is, and the caller disconnects the team.
func (h *Hub) Send(teamID, msgType string, data interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[teamID]
	if !ok {
		return nil
	}
	envelope := apitypes.WSEnvelope{
		Seq:       client.seq + 1,
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msgType, err)
	}
	client.seq++

	// Disconnect, Close and the reconnect replacement all close client.send
	// under h.mu, so the channel send must stay inside the critical section.
	select {
	case client.send <- payload:
		metrics.GetCollector().WSMessagesTotal.WithLabelValues(msgType).Inc()
		return nil
	default:
		return fmt.Errorf("send buffer full for team %s", teamID)
	}
}

// Disconnect closes a team's connection if one is registered
func (h *Hub) Disconnect(teamID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[teamID]
	if !ok {
		return
	}
	delete(h.clients, teamID)
	close(client.send)
	metrics.GetCollector().WSConnectionsActive.Set(float64(len(h.clients)))
	h.logger.Info("team disconnected", "team_id", teamID)
}

// dropIfCurrent removes a client from the registry only if it is still the
// team's registered connection. A reconnect may already have replaced it.
func (h *Hub) dropIfCurrent(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[c.teamID]; ok && current == c {
		delete(h.clients, c.teamID)
		metrics.GetCollector().WSConnectionsActive.Set(float64(len(h.clients)))
	}
}

// IsConnected reports whether a team has a live socket
func (h *Hub) IsConnected(teamID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[teamID]
	return ok
}

// ConnectionCount returns the number of live sockets
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close drops every connection
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for teamID, client := range h.clients {
		close(client.send)
		delete(h.clients, teamID)
	}
}
