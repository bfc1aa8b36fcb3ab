// Package ratelimit admits or rejects provider calls using fixed counting
// windows, one per provider.
//
// A window resets in full once its duration has elapsed since it started, so
// up to twice the limit can pass in a short span straddling a boundary. That
// is an accepted approximation: callers skip a rejected provider instead of
// waiting, and none of the upstream quotas are strict enough to need a
// sliding window.
package ratelimit

import (
	"sort"
	"strings"
	"sync"
	"time"

	"horse.fit/chatsense/internal/globaltime"
)

// DefaultWindow is the window length used when a provider is configured
// without one.
const DefaultWindow = time.Minute

// Window is the state of one provider's counting window.
type Window struct {
	ProviderID      string        `json:"provider_id"`
	WindowStartedAt time.Time     `json:"window_started_at"`
	RequestCount    int           `json:"request_count"`
	Limit           int           `json:"limit"`
	WindowDuration  time.Duration `json:"window_duration"`
}

// Limiter tracks one Window per provider. Providers without a positive limit
// are always admitted.
type Limiter struct {
	mu      sync.Mutex
	clock   globaltime.Clock
	windows map[string]*Window
	total   map[string]int64
}

func New(clock globaltime.Clock) *Limiter {
	return &Limiter{
		clock:   globaltime.OrSystem(clock),
		windows: make(map[string]*Window),
		total:   make(map[string]int64),
	}
}

// Configure sets the limit for a provider. A limit <= 0 removes limiting.
// Reconfiguring keeps the current window's count.
func (l *Limiter) Configure(providerID string, limit int, window time.Duration) {
	id := normalizeID(providerID)
	if id == "" {
		return
	}
	if window <= 0 {
		window = DefaultWindow
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		delete(l.windows, id)
		return
	}
	if existing, ok := l.windows[id]; ok {
		existing.Limit = limit
		existing.WindowDuration = window
		return
	}
	l.windows[id] = &Window{
		ProviderID:      id,
		WindowStartedAt: l.clock.Now(),
		Limit:           limit,
		WindowDuration:  window,
	}
}

// TryAdmit reports whether one more call to providerID fits in the current
// window, counting it when it does. It never blocks.
func (l *Limiter) TryAdmit(providerID string) bool {
	id := normalizeID(providerID)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, limited := l.windows[id]
	if !limited {
		l.total[id]++
		return true
	}

	now := l.clock.Now()
	if now.Sub(w.WindowStartedAt) > w.WindowDuration {
		w.WindowStartedAt = now
		w.RequestCount = 0
	}
	if w.RequestCount >= w.Limit {
		return false
	}
	w.RequestCount++
	l.total[id]++
	return true
}

// Remaining is how many calls the provider may still make in its current
// window; -1 means unlimited.
func (l *Limiter) Remaining(providerID string) int {
	id := normalizeID(providerID)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, limited := l.windows[id]
	if !limited {
		return -1
	}
	if l.clock.Now().Sub(w.WindowStartedAt) > w.WindowDuration {
		return w.Limit
	}
	return max(0, w.Limit-w.RequestCount)
}

// Snapshot copies every configured window, sorted by provider.
func (l *Limiter) Snapshot() []Window {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Window, 0, len(l.windows))
	for _, w := range l.windows {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// AdmittedCounts returns the lifetime number of admitted calls per provider.
func (l *Limiter) AdmittedCounts() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]int64, len(l.total))
	for id, n := range l.total {
		out[id] = n
	}
	return out
}

func normalizeID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
