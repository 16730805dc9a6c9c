package registry

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Profile is the immutable configuration of one inference provider.
type Profile struct {
	ID          string  `yaml:"id" json:"id"`
	Label       string  `yaml:"label" json:"label"`
	Vendor      string  `yaml:"vendor" json:"vendor"`
	Shape       Shape   `yaml:"shape" json:"shape"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

// Registry is the read-only provider catalog. It is built once at startup
// and shared by concurrent audits without locking.
type Registry struct {
	profiles   map[string]Profile
	order      []string
	defaultID  string
	fallbackID string
	logger     zerolog.Logger
}

func New(profiles []Profile, defaultID, fallbackID string, logger zerolog.Logger) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, errors.New("registry: empty provider catalog")
	}
	r := &Registry{
		profiles:   make(map[string]Profile, len(profiles)),
		defaultID:  defaultID,
		fallbackID: fallbackID,
		logger:     logger,
	}
	for _, p := range profiles {
		if p.ID == "" {
			return nil, errors.New("registry: provider with empty id")
		}
		if _, dup := r.profiles[p.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate provider %q", p.ID)
		}
		if !KnownShape(p.Shape) {
			logger.Warn().Str("provider", p.ID).Str("shape", string(p.Shape)).Msg("unknown request shape, using messages dialect")
		}
		r.profiles[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	if _, ok := r.profiles[defaultID]; !ok {
		return nil, fmt.Errorf("registry: default provider %q not in catalog", defaultID)
	}
	if r.fallbackID == "" {
		r.fallbackID = defaultID
	}
	if _, ok := r.profiles[r.fallbackID]; !ok {
		return nil, fmt.Errorf("registry: fallback provider %q not in catalog", r.fallbackID)
	}
	return r, nil
}

// Lookup returns the profile for id, or the default profile when id is
// empty or unknown.
func (r *Registry) Lookup(id string) Profile {
	if id == "" {
		r.logger.Debug().Str("default", r.defaultID).Msg("no provider requested, using default")
		return r.profiles[r.defaultID]
	}
	if p, ok := r.profiles[id]; ok {
		return p
	}
	r.logger.Warn().Str("requested", id).Str("default", r.defaultID).Msg("unknown provider, using default")
	return r.profiles[r.defaultID]
}

func (r *Registry) Find(id string) (Profile, bool) {
	p, ok := r.profiles[id]
	return p, ok
}

func (r *Registry) Default() Profile { return r.profiles[r.defaultID] }

func (r *Registry) Fallback() Profile { return r.profiles[r.fallbackID] }

func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.profiles[id])
	}
	return out
}

func (r *Registry) Encode(prompt string, p Profile) ([]byte, error) {
	body, err := adapterFor(p.Shape).Encode(prompt, p)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", p.ID, err)
	}
	return body, nil
}

func (r *Registry) Decode(body []byte, p Profile) string {
	return adapterFor(p.Shape).Decode(body)
}
