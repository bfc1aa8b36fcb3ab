package provider

import (
	"context"
	"testing"
	"time"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/config"
	"horse.fit/chatsense/internal/ratelimit"
)

type stubProvider struct {
	id    string
	ops   []analysis.Operation
	creds bool
}

func (s stubProvider) ID() string                       { return s.id }
func (s stubProvider) Operations() []analysis.Operation { return s.ops }
func (s stubProvider) CredentialsPresent() bool         { return s.creds }
func (s stubProvider) Call(context.Context, analysis.Operation, Params) (*Raw, error) {
	return &Raw{Confidence: 1}, nil
}

func TestRegistryChainOrder(t *testing.T) {
	t.Parallel()

	translate := []analysis.Operation{analysis.OperationTranslate}
	r := NewRegistry()
	mustRegister(t, r, stubProvider{id: "c", ops: translate, creds: true}, Settings{Priority: 2})
	mustRegister(t, r, stubProvider{id: "b", ops: translate, creds: true}, Settings{Priority: 1})
	mustRegister(t, r, stubProvider{id: "a", ops: translate, creds: false}, Settings{Priority: 2})
	mustRegister(t, r, stubProvider{id: "e", ops: []analysis.Operation{analysis.OperationEmotion}, creds: true}, Settings{Priority: 0})

	chain := r.Chain(analysis.OperationTranslate)
	got := make([]string, 0, len(chain))
	for _, d := range chain {
		got = append(got, d.ID)
	}
	if want := []string{"b", "a", "c"}; !equalStrings(got, want) {
		t.Fatalf("unexpected chain %v, want %v", got, want)
	}
	if avail := r.Available(analysis.OperationTranslate); !equalStrings(avail, []string{"b", "c"}) {
		t.Fatalf("unexpected available %v", avail)
	}

	if err := r.SetEnabled("B", false); err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	if avail := r.Available(analysis.OperationTranslate); !equalStrings(avail, []string{"c"}) {
		t.Fatalf("unexpected available after disable %v", avail)
	}
	if err := r.SetEnabled("missing", true); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if err := r.Register(stubProvider{id: "c", ops: translate}, Settings{}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestRegistryConfigureLimits(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	mustRegister(t, r, stubProvider{id: "g", ops: []analysis.Operation{analysis.OperationTranslate}, creds: true}, Settings{RateLimit: 2, Window: time.Minute})
	l := ratelimit.New(nil)
	r.ConfigureLimits(l)

	if !l.TryAdmit("g") || !l.TryAdmit("g") {
		t.Fatalf("expected first two calls admitted")
	}
	if l.TryAdmit("g") {
		t.Fatalf("expected third call rejected")
	}
}

func TestOverrides(t *testing.T) {
	t.Parallel()

	o, err := ParseOverrides([]byte(`
providers:
  Google:
    priority: 9
    rate_limit: 5
    window: 30s
  libre:
    enabled: false
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := o.Apply("google", DefaultSettings("google"))
	if s.Priority != 9 || s.RateLimit != 5 || s.Window != 30*time.Second {
		t.Fatalf("unexpected google settings: %+v", s)
	}
	if !o.Apply("libre", DefaultSettings("libre")).Disabled {
		t.Fatalf("expected libre disabled")
	}
	if _, err := ParseOverrides([]byte("providers:\n  google:\n    rate_limit: -1\n")); err == nil {
		t.Fatalf("expected negative rate limit rejected")
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		GoogleTranslateAPIKey: "g",
		LibreTranslateURL:     "http://libre.local",
		OpenAIAPIKey:          "sk",
	}
	r, err := NewRegistryFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if got := r.Available(analysis.OperationTranslate); !equalStrings(got, []string{"google", "libre"}) {
		t.Fatalf("unexpected translate providers %v", got)
	}
	if got := r.Available(analysis.OperationEmotion); !equalStrings(got, []string{"openai"}) {
		t.Fatalf("unexpected emotion providers %v", got)
	}
	chain := r.Chain(analysis.OperationEmotion)
	if len(chain) != 3 || chain[0].ID != AzureTextID || chain[0].RateLimit != 1000 {
		t.Fatalf("unexpected emotion chain %+v", chain)
	}
}

func mustRegister(t *testing.T, r *Registry, p Provider, s Settings) {
	t.Helper()
	if err := r.Register(p, s); err != nil {
		t.Fatalf("register %s: %v", p.ID(), err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
