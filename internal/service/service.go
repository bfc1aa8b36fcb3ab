// Package service assembles the analysis stack and exposes the outbound API:
// translation, emotion analysis, cache clearing and usage statistics.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/cache"
	"horse.fit/chatsense/internal/config"
	"horse.fit/chatsense/internal/connectivity"
	"horse.fit/chatsense/internal/coordinator"
	"horse.fit/chatsense/internal/db"
	"horse.fit/chatsense/internal/globaltime"
	"horse.fit/chatsense/internal/kvstore"
	"horse.fit/chatsense/internal/langdetect"
	"horse.fit/chatsense/internal/logging"
	"horse.fit/chatsense/internal/offline"
	"horse.fit/chatsense/internal/orchestrator"
	"horse.fit/chatsense/internal/provider"
	"horse.fit/chatsense/internal/ratelimit"
)

// EventRecorder persists one row per delivered result.
type EventRecorder interface {
	InsertAnalysisEvent(ctx context.Context, params db.InsertAnalysisEventParams) error
}

// Options carries collaborators. Anything left nil is built from the config.
type Options struct {
	Store        kvstore.Store
	Registry     *provider.Registry
	Connectivity connectivity.Checker
	Detector     langdetect.Detector
	Events       EventRecorder
	HTTPClient   *http.Client
	Clock        globaltime.Clock
	Logger       zerolog.Logger
}

// RequestOptions are the per-call knobs of the outbound API.
type RequestOptions struct {
	ForceRefresh        bool
	Timeout             time.Duration
	ConfidenceThreshold float64
	// Language is the message language for emotion analysis, if known.
	Language        string
	CulturalContext string
}

// TranslationItem is one entry of a batch translation.
type TranslationItem struct {
	Text           string
	SourceLanguage string
	TargetLanguage string
	Options        RequestOptions
}

type Service struct {
	cfg      *config.Config
	store    kvstore.Store
	cache    *cache.Cache
	registry *provider.Registry
	limiter  *ratelimit.Limiter
	orch     *orchestrator.Orchestrator
	coord    *coordinator.Coordinator
	online   connectivity.Checker
	events   EventRecorder
	clock    globaltime.Clock
	log      zerolog.Logger
}

// Open builds a Service with the store backend named by the config.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	opts := Options{Logger: logger}

	switch cfg.StoreBackend {
	case config.StoreMemory:
		opts.Store = kvstore.NewMemory(nil)
	case config.StoreSQLite:
		store, err := kvstore.OpenSQLite(ctx, cfg.SQLitePath, nil)
		if err != nil {
			return nil, err
		}
		opts.Store = store
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts.Store = kvstore.NewPostgres(pool, nil)
		opts.Events = pool
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}

	svc, err := New(cfg, opts)
	if err != nil {
		_ = opts.Store.Close()
		return nil, err
	}
	if _, err := svc.cache.PurgeExpired(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to purge expired cache entries")
	}
	return svc, nil
}

// New wires the analysis stack around opts.Store. The service owns the store
// and closes it in Close.
func New(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("kv store is required")
	}
	clock := globaltime.OrSystem(opts.Clock)
	logger := opts.Logger

	registry := opts.Registry
	if registry == nil {
		var err error
		registry, err = provider.NewRegistryFromConfig(cfg, opts.HTTPClient)
		if err != nil {
			return nil, fmt.Errorf("build provider registry: %w", err)
		}
	}
	limiter := ratelimit.New(clock)
	registry.ConfigureLimits(limiter)

	resultCache, err := cache.New(opts.Store, cache.Options{
		TTL:        cfg.CacheTTL,
		Retention:  cfg.CacheStaleRetention,
		MaxEntries: cfg.CacheMaxEntries,
		Clock:      clock,
		Logger:     logging.Component(logger, "cache"),
	})
	if err != nil {
		return nil, err
	}

	online := opts.Connectivity
	if online == nil {
		online = connectivity.New(cfg.ConnectivityProbeURL, cfg.ConnectivityProbeTTL, clock, logging.Component(logger, "connectivity"))
	}
	detector := opts.Detector
	if detector == nil {
		detector = langdetect.NewLingua()
	}

	degrader := offline.NewHandler(resultCache, clock, logging.Component(logger, "offline"))
	orch, err := orchestrator.New(registry, limiter, resultCache, degrader, orchestrator.Options{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		CacheAcceptance: map[analysis.Operation]float64{
			analysis.OperationTranslate: cfg.CacheAcceptance(string(analysis.OperationTranslate)),
			analysis.OperationEmotion:   cfg.CacheAcceptance(string(analysis.OperationEmotion)),
		},
		CacheTTL:        cfg.CacheTTL,
		ProviderTimeout: cfg.ProviderTimeout,
		MinInputLength:  cfg.MinInputLength,
		Detector:        detector,
		Connectivity:    online,
		Clock:           clock,
		Logger:          logging.Component(logger, "orchestrator"),
	})
	if err != nil {
		resultCache.Close()
		return nil, err
	}

	svc := &Service{
		cfg:      cfg,
		store:    opts.Store,
		cache:    resultCache,
		registry: registry,
		limiter:  limiter,
		orch:     orch,
		online:   online,
		events:   opts.Events,
		clock:    clock,
		log:      logger,
	}
	svc.coord = coordinator.New(coordinator.AnalyzerFunc(svc.analyze), coordinator.Options{
		DebounceWindow:   cfg.DebounceWindow,
		SerialSpacing:    cfg.SerialSpacing,
		BatchConcurrency: cfg.BatchConcurrency,
		Logger:           logging.Component(logger, "coordinator"),
	})
	return svc, nil
}

func (s *Service) Close() error {
	s.cache.Close()
	return s.store.Close()
}

// AnalyzeTranslation translates text immediately.
func (s *Service) AnalyzeTranslation(ctx context.Context, text, sourceLanguage, targetLanguage string, opts RequestOptions) (analysis.Result, error) {
	return s.analyze(ctx, translationRequest("", text, sourceLanguage, targetLanguage, opts))
}

// DraftTranslation translates text typed into a compose box. Calls for the
// same subject are debounced; replaced calls fail with coordinator.ErrSuperseded.
func (s *Service) DraftTranslation(ctx context.Context, subjectID, text, sourceLanguage, targetLanguage string, opts RequestOptions) (analysis.Result, error) {
	req := translationRequest(subjectID, text, sourceLanguage, targetLanguage, opts)
	if err := req.Validate(s.cfg.MinInputLength); err != nil {
		return analysis.Result{}, err
	}
	return wait(ctx, s.coord.Debounce(ctx, req))
}

// BatchTranslate translates every item. The outcome at index i belongs to
// items[i].
func (s *Service) BatchTranslate(ctx context.Context, items []TranslationItem) []coordinator.Outcome {
	reqs := make([]analysis.Request, len(items))
	for i, item := range items {
		reqs[i] = translationRequest("", item.Text, item.SourceLanguage, item.TargetLanguage, item.Options)
	}
	return s.coord.Batch(ctx, reqs)
}

// AnalyzeEmotion scores the emotions in a message. Calls for the same subject
// run one at a time in submission order.
func (s *Service) AnalyzeEmotion(ctx context.Context, text, subjectID string, opts RequestOptions) (analysis.Result, error) {
	req := analysis.Request{
		Operation:           analysis.OperationEmotion,
		SubjectID:           strings.TrimSpace(subjectID),
		InputText:           text,
		SourceLanguage:      opts.Language,
		CulturalContext:     opts.CulturalContext,
		ForceRefresh:        opts.ForceRefresh,
		Timeout:             opts.Timeout,
		ConfidenceThreshold: opts.ConfidenceThreshold,
	}
	if err := req.Validate(s.cfg.MinInputLength); err != nil {
		return analysis.Result{}, err
	}
	return wait(ctx, s.coord.Serialize(ctx, req))
}

// ClearCache drops every cached analysis result and returns how many were removed.
func (s *Service) ClearCache(ctx context.Context) (int64, error) {
	removed, err := s.cache.Clear(ctx)
	if err != nil {
		return removed, err
	}
	s.log.Info().Int64("removed", removed).Msg("Cache cleared")
	return removed, nil
}

// UsageStats is a snapshot of cache and provider activity.
type UsageStats struct {
	CacheSize                int                   `json:"cache_size"`
	PerProviderRequestCounts map[string]int64      `json:"per_provider_request_counts"`
	AvailableProviders       map[string][]string   `json:"available_providers"`
	Cache                    cache.Stats           `json:"cache"`
	RateLimits               []ratelimit.Window    `json:"rate_limits"`
	RemainingRequests        map[string]int        `json:"remaining_requests"`
	Providers                []provider.Descriptor `json:"providers"`
	Online                   bool                  `json:"online"`
}

func (s *Service) UsageStats(ctx context.Context) UsageStats {
	providers := s.registry.All()
	remaining := make(map[string]int, len(providers))
	for _, d := range providers {
		remaining[d.ID] = s.limiter.Remaining(d.ID)
	}
	return UsageStats{
		CacheSize:                s.cache.Len(),
		PerProviderRequestCounts: s.limiter.AdmittedCounts(),
		AvailableProviders: map[string][]string{
			string(analysis.OperationTranslate): s.registry.Available(analysis.OperationTranslate),
			string(analysis.OperationEmotion):   s.registry.Available(analysis.OperationEmotion),
		},
		Cache:      s.cache.Stats(),
		RateLimits:        s.limiter.Snapshot(),
		RemainingRequests: remaining,
		Providers:         providers,
		Online:            s.online.IsOnline(ctx),
	}
}

// SetProviderEnabled turns a provider on or off at runtime.
func (s *Service) SetProviderEnabled(id string, enabled bool) error {
	if err := s.registry.SetEnabled(id, enabled); err != nil {
		return err
	}
	s.log.Info().Str("provider", id).Bool("enabled", enabled).Msg("Provider toggled")
	return nil
}

type usageHistory interface {
	QueryProviderUsage(ctx context.Context, dayStart, dayEnd time.Time) (*db.ProviderUsage, error)
}

// ProviderUsage returns recorded per-provider tallies for [dayStart, dayEnd),
// or nil when no event history is kept.
func (s *Service) ProviderUsage(ctx context.Context, dayStart, dayEnd time.Time) (*db.ProviderUsage, error) {
	history, ok := s.events.(usageHistory)
	if !ok {
		return nil, nil
	}
	return history.QueryProviderUsage(ctx, dayStart, dayEnd)
}

// Online reports the current connectivity answer.
func (s *Service) Online(ctx context.Context) bool {
	return s.online.IsOnline(ctx)
}

func (s *Service) analyze(ctx context.Context, req analysis.Request) (analysis.Result, error) {
	started := s.clock.Now()
	result, err := s.orch.Analyze(ctx, req)
	if err != nil {
		return result, err
	}
	s.record(ctx, result, s.clock.Now().Sub(started))
	return result, nil
}

func (s *Service) record(ctx context.Context, result analysis.Result, latency time.Duration) {
	if s.events == nil {
		return
	}
	err := s.events.InsertAnalysisEvent(ctx, db.InsertAnalysisEventParams{
		RequestID:  result.RequestID,
		Operation:  string(result.Operation),
		ProviderID: result.ProviderID,
		Confidence: result.Confidence,
		FromCache:  result.FromCache,
		Offline:    result.Offline,
		LatencyMS:  latency.Milliseconds(),
		CreatedAt:  s.clock.Now(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Str("request_id", result.RequestID).Msg("Failed to record analysis event")
	}
}

func translationRequest(subjectID, text, sourceLanguage, targetLanguage string, opts RequestOptions) analysis.Request {
	return analysis.Request{
		Operation:           analysis.OperationTranslate,
		SubjectID:           strings.TrimSpace(subjectID),
		InputText:           text,
		SourceLanguage:      sourceLanguage,
		TargetLanguage:      targetLanguage,
		CulturalContext:     opts.CulturalContext,
		ForceRefresh:        opts.ForceRefresh,
		Timeout:             opts.Timeout,
		ConfidenceThreshold: opts.ConfidenceThreshold,
	}
}

func wait(ctx context.Context, ch <-chan coordinator.Outcome) (analysis.Result, error) {
	select {
	case <-ctx.Done():
		return analysis.Result{}, ctx.Err()
	case o := <-ch:
		return o.Result, o.Err
	}
}
