package provider

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/ratelimit"
)

// Settings are the per-provider knobs fixed at registration. Only the
// enabled flag changes at runtime.
type Settings struct {
	Priority  int
	RateLimit int
	Window    time.Duration
	CostHint  float64
	Disabled  bool
}

// Descriptor is a snapshot of one registered provider.
type Descriptor struct {
	ID                 string               `json:"id"`
	Operations         []analysis.Operation `json:"operations"`
	Priority           int                  `json:"priority"`
	Enabled            bool                 `json:"enabled"`
	CredentialsPresent bool                 `json:"credentials_present"`
	CostHint           float64              `json:"cost_hint"`
	RateLimit          int                  `json:"rate_limit"`
	WindowMs           int64                `json:"window_ms"`

	Provider Provider `json:"-"`
}

// Available reports whether the provider may be called at all.
func (d Descriptor) Available() bool {
	return d.Enabled && d.CredentialsPresent
}

type entry struct {
	provider Provider
	settings Settings
	enabled  bool
}

// Registry holds every configured provider and orders them per operation.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds one provider. Registering the same ID twice is an error.
func (r *Registry) Register(p Provider, settings Settings) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if p == nil {
		return fmt.Errorf("provider is nil")
	}
	id := normalizeProviderID(p.ID())
	if id == "" {
		return fmt.Errorf("provider id is required")
	}
	if len(p.Operations()) == 0 {
		return fmt.Errorf("provider %q supports no operations", id)
	}
	if settings.Window <= 0 {
		settings.Window = ratelimit.DefaultWindow
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("provider %q is already registered", id)
	}
	r.entries[id] = &entry{provider: p, settings: settings, enabled: !settings.Disabled}
	return nil
}

// SetEnabled toggles a provider at runtime.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[normalizeProviderID(id)]
	if !ok {
		return fmt.Errorf("provider %q is not registered (available: %s)", id, strings.Join(r.idsLocked(), ", "))
	}
	e.enabled = enabled
	return nil
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalizeProviderID(id)]
	if !ok {
		return Descriptor{}, false
	}
	return describe(e), true
}

// Chain returns every provider supporting op, ordered by ascending priority
// and then by ID. Disabled and credential-less providers are included so the
// caller can record why they were skipped.
func (r *Registry) Chain(op analysis.Operation) []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		if Supports(e.provider, op) {
			out = append(out, describe(e))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Available lists the IDs of callable providers for op, in chain order.
func (r *Registry) Available(op analysis.Operation) []string {
	chain := r.Chain(op)
	ids := make([]string, 0, len(chain))
	for _, d := range chain {
		if d.Available() {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// All returns every descriptor sorted by ID.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, id := range r.idsLocked() {
		out = append(out, describe(r.entries[id]))
	}
	return out
}

// ConfigureLimits installs every provider's window on the limiter.
func (r *Registry) ConfigureLimits(l *ratelimit.Limiter) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, e := range r.entries {
		l.Configure(id, e.settings.RateLimit, e.settings.Window)
	}
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func describe(e *entry) Descriptor {
	return Descriptor{
		ID:                 normalizeProviderID(e.provider.ID()),
		Operations:         slices.Clone(e.provider.Operations()),
		Priority:           e.settings.Priority,
		Enabled:            e.enabled,
		CredentialsPresent: e.provider.CredentialsPresent(),
		CostHint:           e.settings.CostHint,
		RateLimit:          e.settings.RateLimit,
		WindowMs:           e.settings.Window.Milliseconds(),
		Provider:           e.provider,
	}
}

func normalizeProviderID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
