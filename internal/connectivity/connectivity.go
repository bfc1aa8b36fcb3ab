// Package connectivity answers whether remote providers are reachable at all.
package connectivity

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/chatsense/internal/globaltime"
)

type Checker interface {
	IsOnline(ctx context.Context) bool
}

// Static is a settable answer. The zero value is offline.
type Static struct {
	online atomic.Bool
}

func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) IsOnline(context.Context) bool { return s.online.Load() }

func (s *Static) Set(online bool) { s.online.Store(online) }

// Probe issues a HEAD request to a well-known URL and remembers the answer
// for ttl. Any response, even an error status, counts as online.
type Probe struct {
	url    string
	ttl    time.Duration
	client *http.Client
	clock  globaltime.Clock
	log    zerolog.Logger

	mu        sync.Mutex
	checkedAt time.Time
	online    bool
}

func NewProbe(url string, ttl time.Duration, client *http.Client, clock globaltime.Clock, logger zerolog.Logger) *Probe {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Probe{
		url:    strings.TrimSpace(url),
		ttl:    ttl,
		client: client,
		clock:  globaltime.OrSystem(clock),
		log:    logger,
	}
}

func (p *Probe) IsOnline(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if !p.checkedAt.IsZero() && now.Sub(p.checkedAt) < p.ttl {
		return p.online
	}

	online := p.check(ctx)
	if online != p.online || p.checkedAt.IsZero() {
		p.log.Info().Bool("online", online).Str("url", p.url).Msg("Connectivity changed")
	}
	p.online = online
	p.checkedAt = now
	return online
}

func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Str("url", p.url).Msg("Connectivity probe failed")
		return false
	}
	_ = resp.Body.Close()
	return true
}

// New returns a Probe when probeURL is set, otherwise an always-online Static.
func New(probeURL string, ttl time.Duration, clock globaltime.Clock, logger zerolog.Logger) Checker {
	if strings.TrimSpace(probeURL) == "" {
		return NewStatic(true)
	}
	return NewProbe(probeURL, ttl, nil, clock, logger)
}
