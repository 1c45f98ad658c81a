package registry

import (
	"sync"
	"time"

	"cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/google/uuid"
)

// Registry error codes
var (
	ErrDuplicateTeamName = errors.Register("registry", 1, "team name already registered")
	ErrUnsupportedRole   = errors.Register("registry", 2, "unsupported role")
	ErrUnknownAPIKey     = errors.Register("registry", 3, "unknown API key")
	ErrUnknownTeam       = errors.Register("registry", 4, "unknown team")
)

// Team is a registered trading team
type Team struct {
	ID        string    `json:"team_id"`
	Name      string    `json:"team_name"`
	Role      string    `json:"role"`
	APIKey    string    `json:"api_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry holds the registered teams and their API keys
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Team
	byKey  map[string]*Team
	byName map[string]*Team
	roles  map[string]bool
	logger log.Logger
}

// New creates a registry accepting the given roles
func New(supportedRoles []string, logger log.Logger) *Registry {
	roles := make(map[string]bool, len(supportedRoles))
	for _, r := range supportedRoles {
		roles[r] = true
	}
	return &Registry{
		byID:   make(map[string]*Team),
		byKey:  make(map[string]*Team),
		byName: make(map[string]*Team),
		roles:  roles,
		logger: logger.With("component", "registry"),
	}
}

// Register creates a team with a fresh id and API key. Duplicate names and
// unsupported roles are rejected.
func (r *Registry) Register(name, role string) (*Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.roles[role] {
		return nil, errors.Wrapf(ErrUnsupportedRole, "%q", role)
	}
	if _, ok := r.byName[name]; ok {
		return nil, errors.Wrapf(ErrDuplicateTeamName, "%q", name)
	}

	team := &Team{
		ID:        "TEAM-" + uuid.NewString(),
		Name:      name,
		Role:      role,
		APIKey:    uuid.NewString(),
		CreatedAt: time.Now(),
	}
	r.byID[team.ID] = team
	r.byKey[team.APIKey] = team
	r.byName[name] = team
	r.logger.Info("team registered", "team_id", team.ID, "name", name, "role", role)
	return team, nil
}

// Authenticate resolves an API key to its team
func (r *Registry) Authenticate(apiKey string) (*Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	team, ok := r.byKey[apiKey]
	if !ok {
		return nil, ErrUnknownAPIKey
	}
	return team, nil
}

// Get returns a team by id
func (r *Registry) Get(teamID string) (*Team, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	team, ok := r.byID[teamID]
	return team, ok
}

// RoleOf returns the role of a team
func (r *Registry) RoleOf(teamID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	team, ok := r.byID[teamID]
	if !ok {
		return "", errors.Wrapf(ErrUnknownTeam, "%s", teamID)
	}
	return team.Role, nil
}

// Teams returns all registered teams
func (r *Registry) Teams() []*Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Team, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	return out
}
