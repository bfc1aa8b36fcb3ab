package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/cache"
	"horse.fit/chatsense/internal/connectivity"
	"horse.fit/chatsense/internal/globaltime"
	"horse.fit/chatsense/internal/kvstore"
	"horse.fit/chatsense/internal/offline"
	"horse.fit/chatsense/internal/provider"
	"horse.fit/chatsense/internal/ratelimit"
)

type stubProvider struct {
	id         string
	ops        []analysis.Operation
	creds      bool
	confidence float64
	text       string
	err        error
	block      chan struct{}

	calls atomic.Int32
}

func (s *stubProvider) ID() string                       { return s.id }
func (s *stubProvider) Operations() []analysis.Operation { return s.ops }
func (s *stubProvider) CredentialsPresent() bool         { return s.creds }

func (s *stubProvider) Call(ctx context.Context, op analysis.Operation, params provider.Params) (*provider.Raw, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	raw := &provider.Raw{Confidence: s.confidence}
	switch op {
	case analysis.OperationTranslate:
		raw.Translation = &analysis.TranslationPayload{
			Text:           s.text,
			SourceLanguage: params.SourceLanguage,
			TargetLanguage: params.TargetLanguage,
		}
	case analysis.OperationEmotion:
		raw.Emotion = analysis.NewEmotionPayload(map[analysis.Emotion]float64{analysis.EmotionJoy: 1})
	}
	return raw, nil
}

func translator(id string, confidence float64, text string) *stubProvider {
	return &stubProvider{
		id:         id,
		ops:        []analysis.Operation{analysis.OperationTranslate},
		creds:      true,
		confidence: confidence,
		text:       text,
	}
}

type fixture struct {
	registry *provider.Registry
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	online   *connectivity.Static
	clock    *globaltime.Manual
	orch     *Orchestrator
}

func newFixture(t *testing.T, providers map[*stubProvider]provider.Settings) *fixture {
	t.Helper()

	clock := globaltime.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	registry := provider.NewRegistry()
	for p, settings := range providers {
		if err := registry.Register(p, settings); err != nil {
			t.Fatalf("register %s: %v", p.id, err)
		}
	}
	limiter := ratelimit.New(clock)
	registry.ConfigureLimits(limiter)

	c, err := cache.New(kvstore.NewMemory(clock), cache.Options{Clock: clock, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	online := connectivity.NewStatic(true)
	orch, err := New(registry, limiter, c, offline.NewHandler(c, clock, zerolog.Nop()), Options{
		Connectivity: online,
		Clock:        clock,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return &fixture{registry: registry, limiter: limiter, cache: c, online: online, clock: clock, orch: orch}
}

func translateRequest(text string) analysis.Request {
	return analysis.Request{
		Operation:      analysis.OperationTranslate,
		InputText:      text,
		SourceLanguage: "fr",
		TargetLanguage: "en",
	}
}

func TestAnalyzeFallsBackToNextProvider(t *testing.T) {
	t.Parallel()

	weak := translator("a", 0.3, "weak")
	strong := translator("b", 0.9, "strong")
	f := newFixture(t, map[*stubProvider]provider.Settings{
		weak:   {Priority: 1},
		strong: {Priority: 2},
	})

	result, err := f.orch.Analyze(context.Background(), translateRequest("Bonjour tout le monde"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.ProviderID != "b" || result.Text() != "strong" {
		t.Fatalf("expected provider b result, got %s %q", result.ProviderID, result.Text())
	}
	if weak.calls.Load() != 1 || strong.calls.Load() != 1 {
		t.Fatalf("expected one call each, got a=%d b=%d", weak.calls.Load(), strong.calls.Load())
	}
	if len(result.Attempts) != 2 || result.Attempts[0].ProviderID != "a" || result.Attempts[0].Outcome != analysis.OutcomeBelowThreshold {
		t.Fatalf("unexpected attempts %+v", result.Attempts)
	}
	if result.Attempts[1].Outcome != analysis.OutcomeAccepted {
		t.Fatalf("expected second attempt accepted, got %+v", result.Attempts[1])
	}
	if result.RequestID == "" || result.FromCache || result.Offline {
		t.Fatalf("unexpected flags %+v", result)
	}
}

func TestAnalyzeIdentityTranslationSkipsProviders(t *testing.T) {
	t.Parallel()

	p := translator("a", 0.9, "unused")
	f := newFixture(t, map[*stubProvider]provider.Settings{p: {Priority: 1}})

	req := translateRequest("Hello there")
	req.SourceLanguage = "EN"
	result, err := f.orch.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if p.calls.Load() != 0 {
		t.Fatalf("expected no provider calls, got %d", p.calls.Load())
	}
	if result.Text() != "Hello there" || result.Confidence != 1 || result.ProviderID != analysis.ProviderNone {
		t.Fatalf("unexpected identity result %+v", result)
	}
}

func TestAnalyzeRejectsShortInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, err := f.orch.Analyze(context.Background(), translateRequest(" a "))
	var invalid *analysis.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	if !errors.Is(err, analysis.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput in chain")
	}
}

func TestAnalyzeSecondCallHitsCache(t *testing.T) {
	t.Parallel()

	p := translator("a", 0.95, "Hello everyone")
	f := newFixture(t, map[*stubProvider]provider.Settings{p: {Priority: 1}})

	first, err := f.orch.Analyze(context.Background(), translateRequest("Bonjour tout le monde"))
	if err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	second, err := f.orch.Analyze(context.Background(), translateRequest("  bonjour   TOUT le monde "))
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if p.calls.Load() != 1 {
		t.Fatalf("expected a single provider call, got %d", p.calls.Load())
	}
	if first.FromCache || !second.FromCache {
		t.Fatalf("unexpected from-cache flags first=%t second=%t", first.FromCache, second.FromCache)
	}
	if second.Text() != first.Text() || second.RequestID == first.RequestID {
		t.Fatalf("unexpected cached result %+v", second)
	}

	refresh := translateRequest("Bonjour tout le monde")
	refresh.ForceRefresh = true
	if _, err := f.orch.Analyze(context.Background(), refresh); err != nil {
		t.Fatalf("refresh analyze: %v", err)
	}
	if p.calls.Load() != 2 {
		t.Fatalf("expected force refresh to call the provider, got %d calls", p.calls.Load())
	}
}

func TestAnalyzeOfflineServesStaleEntry(t *testing.T) {
	t.Parallel()

	p := translator("a", 0.95, "Hello everyone")
	f := newFixture(t, map[*stubProvider]provider.Settings{p: {Priority: 1}})

	if _, err := f.orch.Analyze(context.Background(), translateRequest("Bonjour tout le monde")); err != nil {
		t.Fatalf("warm analyze: %v", err)
	}
	f.clock.Advance(48 * time.Hour)
	f.online.Set(false)

	result, err := f.orch.Analyze(context.Background(), translateRequest("Bonjour tout le monde"))
	if err != nil {
		t.Fatalf("offline analyze: %v", err)
	}
	if p.calls.Load() != 1 {
		t.Fatalf("expected no provider call while offline, got %d", p.calls.Load())
	}
	if !result.Offline || !result.FromCache || result.Text() != "Hello everyone" {
		t.Fatalf("expected stale offline result, got %+v", result)
	}
	if !hasWarning(result, analysis.WarningStale) {
		t.Fatalf("expected stale warning, got %v", result.Warnings)
	}
}

func TestAnalyzeOfflineWithoutCacheEchoesInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.online.Set(false)

	result, err := f.orch.Analyze(context.Background(), translateRequest("Bonjour"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !result.Offline || result.Text() != "Bonjour" || !result.Translation.Pending {
		t.Fatalf("unexpected offline result %+v", result)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != analysis.WarningUnavailable {
		t.Fatalf("unexpected warnings %v", result.Warnings)
	}
}

func TestAnalyzeBelowThresholdKeepsBest(t *testing.T) {
	t.Parallel()

	a := translator("a", 0.4, "first")
	b := translator("b", 0.5, "second")
	f := newFixture(t, map[*stubProvider]provider.Settings{
		a: {Priority: 1},
		b: {Priority: 2},
	})

	result, err := f.orch.Analyze(context.Background(), translateRequest("Bonjour tout le monde"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.ProviderID != "b" || result.Confidence != 0.5 {
		t.Fatalf("expected best provider b, got %s %.2f", result.ProviderID, result.Confidence)
	}
	if !hasWarning(result, analysis.WarningBelowThreshold) {
		t.Fatalf("expected below-threshold warning, got %v", result.Warnings)
	}
	if result.Offline {
		t.Fatalf("live result must not be offline")
	}
}

func TestAnalyzeSkipsRateLimitedProvider(t *testing.T) {
	t.Parallel()

	limited := translator("a", 0.9, "from a")
	backup := translator("b", 0.9, "from b")
	f := newFixture(t, map[*stubProvider]provider.Settings{
		limited: {Priority: 1, RateLimit: 1, Window: time.Minute},
		backup:  {Priority: 2},
	})

	if _, err := f.orch.Analyze(context.Background(), translateRequest("Bonjour tout le monde")); err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	result, err := f.orch.Analyze(context.Background(), translateRequest("Au revoir tout le monde"))
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if limited.calls.Load() != 1 {
		t.Fatalf("expected limited provider called once, got %d", limited.calls.Load())
	}
	if result.ProviderID != "b" {
		t.Fatalf("expected fallback to b, got %s", result.ProviderID)
	}
	if len(result.Attempts) == 0 || result.Attempts[0].Outcome != analysis.OutcomeRateLimited {
		t.Fatalf("expected rate-limited attempt, got %+v", result.Attempts)
	}
}

func TestAnalyzeSkipsUnavailableAndFailingProviders(t *testing.T) {
	t.Parallel()

	noCreds := translator("a", 0.9, "nope")
	noCreds.creds = false
	failing := translator("b", 0.9, "nope")
	failing.err = errors.New("connection reset")
	good := translator("c", 0.8, "ok")
	f := newFixture(t, map[*stubProvider]provider.Settings{
		noCreds: {Priority: 1},
		failing: {Priority: 2},
		good:    {Priority: 3},
	})

	result, err := f.orch.Analyze(context.Background(), translateRequest("Bonjour tout le monde"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if noCreds.calls.Load() != 0 {
		t.Fatalf("provider without credentials must not be called")
	}
	want := []string{analysis.OutcomeUnavailable, analysis.OutcomeTransportError, analysis.OutcomeAccepted}
	if len(result.Attempts) != len(want) {
		t.Fatalf("unexpected attempts %+v", result.Attempts)
	}
	for i, outcome := range want {
		if result.Attempts[i].Outcome != outcome {
			t.Fatalf("attempt %d: expected %s, got %s", i, outcome, result.Attempts[i].Outcome)
		}
	}
}

func TestAnalyzeProviderTimeout(t *testing.T) {
	t.Parallel()

	slow := translator("a", 0.9, "late")
	slow.block = make(chan struct{})
	fast := translator("b", 0.9, "on time")
	f := newFixture(t, map[*stubProvider]provider.Settings{
		slow: {Priority: 1},
		fast: {Priority: 2},
	})

	req := translateRequest("Bonjour tout le monde")
	req.Timeout = 20 * time.Millisecond
	result, err := f.orch.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.ProviderID != "b" || result.Attempts[0].Outcome != analysis.OutcomeTimeout {
		t.Fatalf("expected timeout then fallback, got %+v", result.Attempts)
	}
}

func TestAnalyzeEmotionShortTextWarning(t *testing.T) {
	t.Parallel()

	p := &stubProvider{id: "e", ops: []analysis.Operation{analysis.OperationEmotion}, creds: true, confidence: 0.9}
	f := newFixture(t, map[*stubProvider]provider.Settings{p: {Priority: 1}})

	result, err := f.orch.Analyze(context.Background(), analysis.Request{
		Operation: analysis.OperationEmotion,
		InputText: "Super !",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.Emotion == nil || result.Emotion.Dominant != analysis.EmotionJoy {
		t.Fatalf("unexpected emotion %+v", result.Emotion)
	}
	if !hasWarning(result, analysis.WarningShortText) {
		t.Fatalf("expected short-text warning, got %v", result.Warnings)
	}

	cached, err := f.orch.Analyze(context.Background(), analysis.Request{
		Operation: analysis.OperationEmotion,
		InputText: "Super !",
	})
	if err != nil {
		t.Fatalf("cached analyze: %v", err)
	}
	if !cached.FromCache || p.calls.Load() != 1 {
		t.Fatalf("expected cache hit, from_cache=%t calls=%d", cached.FromCache, p.calls.Load())
	}
	if !hasWarning(cached, analysis.WarningShortText) {
		t.Fatalf("expected short-text warning on cache hit, got %v", cached.Warnings)
	}
}

func TestAnalyzeCacheHitHonorsRequestThreshold(t *testing.T) {
	t.Parallel()

	p := &stubProvider{id: "e", ops: []analysis.Operation{analysis.OperationEmotion}, creds: true, confidence: 0.7}
	f := newFixture(t, map[*stubProvider]provider.Settings{p: {Priority: 1}})
	req := analysis.Request{Operation: analysis.OperationEmotion, InputText: "What a wonderful surprise today"}

	if _, err := f.orch.Analyze(context.Background(), req); err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	hit, err := f.orch.Analyze(context.Background(), req)
	if err != nil || !hit.FromCache {
		t.Fatalf("expected cache hit under the default threshold, from_cache=%t err=%v", hit.FromCache, err)
	}

	strict := req
	strict.ConfidenceThreshold = 0.9
	result, err := f.orch.Analyze(context.Background(), strict)
	if err != nil {
		t.Fatalf("strict analyze: %v", err)
	}
	if result.FromCache || p.calls.Load() != 2 {
		t.Fatalf("expected strict threshold to bypass the cached entry, from_cache=%t calls=%d", result.FromCache, p.calls.Load())
	}
	if !hasWarning(result, analysis.WarningBelowThreshold) {
		t.Fatalf("expected below-threshold warning, got %v", result.Warnings)
	}
}

func TestAnalyzeSharesInFlightCalls(t *testing.T) {
	t.Parallel()

	p := translator("a", 0.9, "shared")
	p.block = make(chan struct{})
	f := newFixture(t, map[*stubProvider]provider.Settings{p: {Priority: 1}})

	var wg sync.WaitGroup
	ids := make([]string, 3)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.orch.Analyze(context.Background(), translateRequest("Bonjour tout le monde"))
			if err != nil {
				t.Errorf("analyze %d: %v", i, err)
				return
			}
			ids[i] = result.RequestID
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(p.block)
	wg.Wait()

	if calls := p.calls.Load(); calls < 1 || calls > 3 {
		t.Fatalf("unexpected call count %d", calls)
	}
	if ids[0] == ids[1] || ids[1] == ids[2] {
		t.Fatalf("expected distinct request ids, got %v", ids)
	}
}

func TestAnalyzeReturnsWhenCallerCancels(t *testing.T) {
	t.Parallel()

	p := translator("a", 0.9, "late")
	p.block = make(chan struct{})
	defer close(p.block)
	f := newFixture(t, map[*stubProvider]provider.Settings{p: {Priority: 1}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.orch.Analyze(ctx, translateRequest("Bonjour tout le monde"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func hasWarning(r analysis.Result, w string) bool {
	for _, existing := range r.Warnings {
		if existing == w {
			return true
		}
	}
	return false
}
