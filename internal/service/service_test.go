package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/config"
	"horse.fit/chatsense/internal/connectivity"
	"horse.fit/chatsense/internal/db"
	"horse.fit/chatsense/internal/kvstore"
	"horse.fit/chatsense/internal/provider"
)

type fakeProvider struct {
	id    string
	ops   []analysis.Operation
	calls atomic.Int32
	err   error
}

func (f *fakeProvider) ID() string                       { return f.id }
func (f *fakeProvider) Operations() []analysis.Operation { return f.ops }
func (f *fakeProvider) CredentialsPresent() bool         { return true }

func (f *fakeProvider) Call(_ context.Context, op analysis.Operation, params provider.Params) (*provider.Raw, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if op == analysis.OperationEmotion {
		return &provider.Raw{
			Emotion:    analysis.NewEmotionPayload(map[analysis.Emotion]float64{analysis.EmotionJoy: 0.7, analysis.EmotionTrust: 0.3}),
			Confidence: 0.85,
		}, nil
	}
	return &provider.Raw{
		Translation: &analysis.TranslationPayload{Text: "[" + params.TargetLanguage + "] " + params.Text, TargetLanguage: params.TargetLanguage},
		Confidence:  0.9,
	}, nil
}

type noDetector struct{}

func (noDetector) Detect(string) (string, float64) { return "", 0 }

type recordedEvents struct {
	mu     sync.Mutex
	events []db.InsertAnalysisEventParams
}

func (r *recordedEvents) InsertAnalysisEvent(_ context.Context, params db.InsertAnalysisEventParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, params)
	return nil
}

func (r *recordedEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:          "local",
		LogLevel:             "info",
		StoreBackend:         config.StoreMemory,
		ConfidenceThreshold:  0.6,
		CacheAcceptTranslate: 0.8,
		CacheAcceptEmotion:   0.5,
		CacheTTL:             24 * time.Hour,
		CacheStaleRetention:  168 * time.Hour,
		CacheMaxEntries:      100,
		MinInputLength:       2,
		ProviderTimeout:      time.Second,
		DebounceWindow:       100 * time.Millisecond,
		SerialSpacing:        time.Millisecond,
		BatchConcurrency:     2,
		HTTPHost:             "127.0.0.1",
		HTTPPort:             8090,
	}
}

type harness struct {
	svc        *Service
	translator *fakeProvider
	emotion    *fakeProvider
	online     *connectivity.Static
	events     *recordedEvents
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	translator := &fakeProvider{id: "tr", ops: []analysis.Operation{analysis.OperationTranslate}}
	emotion := &fakeProvider{id: "em", ops: []analysis.Operation{analysis.OperationEmotion}}
	registry := provider.NewRegistry()
	if err := registry.Register(translator, provider.Settings{Priority: 1, RateLimit: 10, Window: time.Minute}); err != nil {
		t.Fatalf("register translator: %v", err)
	}
	if err := registry.Register(emotion, provider.Settings{Priority: 1}); err != nil {
		t.Fatalf("register emotion: %v", err)
	}

	online := connectivity.NewStatic(true)
	events := &recordedEvents{}
	svc, err := New(testConfig(), Options{
		Store:        kvstore.NewMemory(nil),
		Registry:     registry,
		Connectivity: online,
		Detector:     noDetector{},
		Events:       events,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return &harness{svc: svc, translator: translator, emotion: emotion, online: online, events: events}
}

func TestAnalyzeTranslationCachesAndStats(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.AnalyzeTranslation(ctx, "Bonjour tout le monde", "fr", "en", RequestOptions{})
	if err != nil {
		t.Fatalf("first translation: %v", err)
	}
	if first.Text() != "[en] Bonjour tout le monde" || first.FromCache {
		t.Fatalf("unexpected first result %+v", first)
	}
	second, err := h.svc.AnalyzeTranslation(ctx, "Bonjour tout le monde", "fr", "en", RequestOptions{})
	if err != nil {
		t.Fatalf("second translation: %v", err)
	}
	if !second.FromCache || h.translator.calls.Load() != 1 {
		t.Fatalf("expected cache hit without another call, calls=%d", h.translator.calls.Load())
	}

	stats := h.svc.UsageStats(ctx)
	if stats.CacheSize != 1 {
		t.Fatalf("expected cache size 1, got %d", stats.CacheSize)
	}
	if stats.PerProviderRequestCounts["tr"] != 1 {
		t.Fatalf("unexpected request counts %v", stats.PerProviderRequestCounts)
	}
	if got := stats.AvailableProviders["translate"]; len(got) != 1 || got[0] != "tr" {
		t.Fatalf("unexpected available providers %v", stats.AvailableProviders)
	}
	if stats.RemainingRequests["tr"] != 9 || stats.RemainingRequests["em"] != -1 {
		t.Fatalf("unexpected remaining requests %v", stats.RemainingRequests)
	}
	if stats.Cache.Hits != 1 || !stats.Online {
		t.Fatalf("unexpected cache stats %+v online=%t", stats.Cache, stats.Online)
	}
	if h.events.count() != 2 {
		t.Fatalf("expected two recorded events, got %d", h.events.count())
	}

	removed, err := h.svc.ClearCache(ctx)
	if err != nil {
		t.Fatalf("clear cache: %v", err)
	}
	if removed != 1 || h.svc.UsageStats(ctx).CacheSize != 0 {
		t.Fatalf("expected one removed entry, got %d", removed)
	}
}

func TestAnalyzeTranslationRejectsShortText(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.svc.AnalyzeTranslation(context.Background(), "a", "fr", "en", RequestOptions{})
	if !errors.Is(err, analysis.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if h.translator.calls.Load() != 0 || h.events.count() != 0 {
		t.Fatalf("expected no provider call or event")
	}
}

func TestAnalyzeEmotionSerializedPerSubject(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	texts := []string{"I love this so much", "This is great news", "What a lovely day"}

	results := make([]analysis.Result, len(texts))
	errs := make([]error, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = h.svc.AnalyzeEmotion(context.Background(), text, "chat-1", RequestOptions{Language: "en"})
		}()
	}
	wg.Wait()

	for i, r := range results {
		if errs[i] != nil {
			t.Fatalf("emotion %d: %v", i, errs[i])
		}
		if r.Emotion == nil || r.Emotion.Dominant != analysis.EmotionJoy || r.ProviderID != "em" {
			t.Fatalf("emotion %d: unexpected result %+v", i, r)
		}
	}
	if h.emotion.calls.Load() != 3 {
		t.Fatalf("expected three provider calls, got %d", h.emotion.calls.Load())
	}
}

func TestAnalyzeEmotionOfflineHeuristic(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.online.Set(false)

	result, err := h.svc.AnalyzeEmotion(context.Background(), "Je suis super content !", "chat-2", RequestOptions{})
	if err != nil {
		t.Fatalf("emotion: %v", err)
	}
	if result.ProviderID != analysis.ProviderLocal || result.Emotion.Dominant != analysis.EmotionJoy {
		t.Fatalf("unexpected heuristic result %+v", result)
	}
	if result.Confidence < 0.3 || result.Confidence > 0.4 || !result.Offline {
		t.Fatalf("unexpected confidence %.2f offline=%t", result.Confidence, result.Offline)
	}
	if h.emotion.calls.Load() != 0 {
		t.Fatalf("expected no provider calls while offline")
	}
}

func TestTranslationProvidersDownNoCache(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.translator.err = errors.New("connection refused")

	result, err := h.svc.AnalyzeTranslation(context.Background(), "Bonjour", "fr", "en", RequestOptions{})
	if err != nil {
		t.Fatalf("translation: %v", err)
	}
	if !result.Offline || result.Confidence >= 0.2 {
		t.Fatalf("unexpected degraded result %+v", result)
	}
	if len(result.Warnings) != 1 || result.Warnings[0] != analysis.WarningUnavailable {
		t.Fatalf("unexpected warnings %v", result.Warnings)
	}
}

func TestDraftTranslationDebounces(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	type outcome struct {
		result analysis.Result
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		r, err := h.svc.DraftTranslation(ctx, "chat-3", "Bonjour", "fr", "en", RequestOptions{})
		first <- outcome{r, err}
	}()
	time.Sleep(20 * time.Millisecond)
	second, err := h.svc.DraftTranslation(ctx, "chat-3", "Bonjour tout le monde", "fr", "en", RequestOptions{})
	if err != nil {
		t.Fatalf("second draft: %v", err)
	}
	if second.Text() != "[en] Bonjour tout le monde" {
		t.Fatalf("unexpected draft result %q", second.Text())
	}
	if got := <-first; got.err == nil {
		t.Fatalf("expected first draft superseded, got %+v", got.result)
	}
	if h.translator.calls.Load() != 1 {
		t.Fatalf("expected a single provider call, got %d", h.translator.calls.Load())
	}
}

func TestBatchTranslate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	outs := h.svc.BatchTranslate(context.Background(), []TranslationItem{
		{Text: "Bonjour", SourceLanguage: "fr", TargetLanguage: "en"},
		{Text: "x", SourceLanguage: "fr", TargetLanguage: "en"},
		{Text: "Hola amigos", SourceLanguage: "es", TargetLanguage: "en"},
	})
	if len(outs) != 3 {
		t.Fatalf("expected three outcomes, got %d", len(outs))
	}
	if outs[0].Err != nil || outs[0].Result.Text() != "[en] Bonjour" {
		t.Fatalf("unexpected first outcome %+v", outs[0])
	}
	if !errors.Is(outs[1].Err, analysis.ErrInvalidInput) || outs[1].Result.Text() != "x" {
		t.Fatalf("expected echoed failure, got %+v", outs[1])
	}
	if outs[2].Err != nil || outs[2].Result.Text() != "[en] Hola amigos" {
		t.Fatalf("unexpected third outcome %+v", outs[2])
	}
}

func TestSetProviderEnabled(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.svc.SetProviderEnabled("tr", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if got := h.svc.UsageStats(context.Background()).AvailableProviders["translate"]; len(got) != 0 {
		t.Fatalf("expected no available translators, got %v", got)
	}
	if err := h.svc.SetProviderEnabled("missing", true); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
