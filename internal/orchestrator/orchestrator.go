// Package orchestrator runs one analysis request through cache, providers in
// priority order, and offline degradation. Apart from input validation it
// always produces a result.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/cache"
	"horse.fit/chatsense/internal/globaltime"
	"horse.fit/chatsense/internal/langdetect"
	"horse.fit/chatsense/internal/provider"
	"horse.fit/chatsense/internal/telemetry"
)

const (
	DefaultConfidenceThreshold = 0.6
	DefaultProviderTimeout     = 5 * time.Second

	// detectionFloor is the detector confidence needed before a guessed
	// source language is passed on to providers.
	detectionFloor = 0.5
	// shortTextWords is the word count below which emotion results carry a
	// short-text warning.
	shortTextWords = 3
)

// Chain lists the providers for an operation in the order to try them.
type Chain interface {
	Chain(op analysis.Operation) []provider.Descriptor
}

type Limiter interface {
	TryAdmit(providerID string) bool
}

type Cache interface {
	Get(ctx context.Context, key string) (analysis.Result, bool)
	Put(ctx context.Context, key string, result analysis.Result, ttl time.Duration) error
}

type Degrader interface {
	Degrade(ctx context.Context, req analysis.Request, key string) analysis.Result
}

type Connectivity interface {
	IsOnline(ctx context.Context) bool
}

type Options struct {
	ConfidenceThreshold float64
	// CacheAcceptance is the minimum confidence, per operation, for writing
	// a live result to the cache.
	CacheAcceptance map[analysis.Operation]float64
	CacheTTL        time.Duration
	ProviderTimeout time.Duration
	MinInputLength  int

	Detector     langdetect.Detector
	Connectivity Connectivity
	Clock        globaltime.Clock
	Logger       zerolog.Logger
	Tracer       trace.Tracer
}

type Orchestrator struct {
	chain    Chain
	limiter  Limiter
	cache    Cache
	degrader Degrader

	threshold  float64
	acceptance map[analysis.Operation]float64
	cacheTTL   time.Duration
	timeout    time.Duration
	minLength  int
	detector   langdetect.Detector
	online     Connectivity
	clock      globaltime.Clock
	log        zerolog.Logger
	tracer     trace.Tracer

	flights singleflight.Group
}

func New(chain Chain, limiter Limiter, c Cache, degrader Degrader, opts Options) (*Orchestrator, error) {
	if chain == nil || limiter == nil || c == nil || degrader == nil {
		return nil, fmt.Errorf("chain, limiter, cache and degrader are required")
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.MinInputLength <= 0 {
		opts.MinInputLength = analysis.DefaultMinInputLength
	}
	acceptance := map[analysis.Operation]float64{
		analysis.OperationTranslate: 0.8,
		analysis.OperationEmotion:   0.5,
	}
	for op, v := range opts.CacheAcceptance {
		acceptance[op] = v
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer("orchestrator")
	}
	return &Orchestrator{
		chain:      chain,
		limiter:    limiter,
		cache:      c,
		degrader:   degrader,
		threshold:  opts.ConfidenceThreshold,
		acceptance: acceptance,
		cacheTTL:   opts.CacheTTL,
		timeout:    opts.ProviderTimeout,
		minLength:  opts.MinInputLength,
		detector:   opts.Detector,
		online:     opts.Connectivity,
		clock:      globaltime.OrSystem(opts.Clock),
		log:        opts.Logger,
		tracer:     opts.Tracer,
	}, nil
}

// Analyze returns a result for req. The only errors are an
// *analysis.InvalidInputError for unusable input and ctx.Err() when the
// caller gives up before a result exists.
func (o *Orchestrator) Analyze(ctx context.Context, req analysis.Request) (analysis.Result, error) {
	if err := req.Validate(o.minLength); err != nil {
		return analysis.Result{}, err
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}

	if req.IsIdentityTranslation() {
		result := analysis.IdentityResult(req)
		result.CreatedAt = o.clock.Now()
		return result, nil
	}

	key := cache.KeyFor(req)
	if !req.ForceRefresh {
		// An explicit per-request threshold the entry misses falls through
		// to the providers.
		if hit, ok := o.cache.Get(ctx, key); ok && hit.Confidence >= req.ConfidenceThreshold {
			hit.RequestID = req.ID
			hit.FromCache = true
			annotate(req, &hit)
			o.log.Debug().Str("request_id", req.ID).Str("operation", string(req.Operation)).Msg("Cache hit")
			return hit, nil
		}
	}

	// Identical requests in flight share one provider pass. It is detached
	// from caller cancellation and bounded by provider timeouts.
	flightKey := fmt.Sprintf("%s|%t|%g", key, req.ForceRefresh, req.ConfidenceThreshold)
	ch := o.flights.DoChan(flightKey, func() (any, error) {
		return o.run(context.WithoutCancel(ctx), req, key), nil
	})

	select {
	case <-ctx.Done():
		return analysis.Result{}, ctx.Err()
	case res := <-ch:
		result := res.Val.(analysis.Result).Clone()
		result.RequestID = req.ID
		return result, nil
	}
}

func (o *Orchestrator) run(ctx context.Context, req analysis.Request, key string) analysis.Result {
	ctx, span := o.tracer.Start(ctx, "analysis.analyze", trace.WithAttributes(
		attribute.String("analysis.operation", string(req.Operation)),
		attribute.String("analysis.request_id", req.ID),
	))
	defer span.End()

	params := o.params(req)
	threshold := o.thresholdFor(req)

	var (
		attempts []analysis.Attempt
		accepted *analysis.Result
		best     *analysis.Result
	)

	if o.online != nil && !o.online.IsOnline(ctx) {
		o.log.Info().Str("request_id", req.ID).Msg("Offline, skipping providers")
	} else {
		for _, d := range o.chain.Chain(req.Operation) {
			result, attempt, ok := o.try(ctx, req, d, params, threshold)
			attempts = append(attempts, attempt)
			if !ok {
				continue
			}
			if result.Confidence >= threshold {
				accepted = &result
				break
			}
			if best == nil || result.Confidence > best.Confidence {
				best = &result
			}
		}
	}

	var out analysis.Result
	switch {
	case accepted != nil:
		out = *accepted
		o.store(ctx, key, out)
	case best != nil:
		out = *best
		out.WithWarning(analysis.WarningBelowThreshold)
		o.store(ctx, key, out)
	default:
		out = o.degrader.Degrade(ctx, req, key)
	}

	out.RequestID = req.ID
	out.Attempts = attempts
	annotate(req, &out)

	span.SetAttributes(
		attribute.String("analysis.provider", out.ProviderID),
		attribute.Float64("analysis.confidence", out.Confidence),
		attribute.Bool("analysis.offline", out.Offline),
		attribute.Int("analysis.attempts", len(attempts)),
	)
	return out
}

// try runs one provider. ok is false when the provider was skipped or failed.
func (o *Orchestrator) try(ctx context.Context, req analysis.Request, d provider.Descriptor, params provider.Params, threshold float64) (analysis.Result, analysis.Attempt, bool) {
	attempt := analysis.Attempt{ProviderID: d.ID}
	logger := o.log.With().Str("request_id", req.ID).Str("provider", d.ID).Str("operation", string(req.Operation)).Logger()

	switch {
	case !d.Enabled:
		attempt.Outcome = analysis.OutcomeUnavailable
		attempt.Error = "disabled"
		return analysis.Result{}, attempt, false
	case !d.CredentialsPresent:
		attempt.Outcome = analysis.OutcomeUnavailable
		attempt.Error = "credentials missing"
		return analysis.Result{}, attempt, false
	case !o.limiter.TryAdmit(d.ID):
		attempt.Outcome = analysis.OutcomeRateLimited
		attempt.Error = analysis.ErrRateLimited.Error()
		logger.Debug().Msg("Provider rate limited, skipping")
		return analysis.Result{}, attempt, false
	}

	timeout := o.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	callCtx, span := o.tracer.Start(callCtx, "provider.call", trace.WithAttributes(
		attribute.String("provider.id", d.ID),
	))
	defer span.End()

	started := o.clock.Now()
	raw, err := d.Provider.Call(callCtx, req.Operation, params)
	attempt.LatencyMs = o.clock.Now().Sub(started).Milliseconds()
	if err == nil && raw == nil {
		err = analysis.NewProviderError(d.ID, analysis.ErrProviderTransport, fmt.Errorf("adapter returned no result"))
	}
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		perr := analysis.ClassifyProviderError(d.ID, err)
		attempt.Outcome = analysis.OutcomeForError(perr)
		attempt.Error = perr.Error()
		span.RecordError(perr)
		span.SetStatus(codes.Error, attempt.Outcome)
		logger.Warn().Err(perr).Str("outcome", attempt.Outcome).Msg("Provider call failed")
		return analysis.Result{}, attempt, false
	}

	result := o.resultFrom(req, d.ID, raw)
	attempt.Confidence = result.Confidence
	if result.Confidence >= threshold {
		attempt.Outcome = analysis.OutcomeAccepted
		logger.Debug().Float64("confidence", result.Confidence).Msg("Provider result accepted")
	} else {
		attempt.Outcome = analysis.OutcomeBelowThreshold
		logger.Debug().Float64("confidence", result.Confidence).Float64("threshold", threshold).Msg("Provider result below threshold")
	}
	span.SetAttributes(attribute.Float64("provider.confidence", result.Confidence))
	return result, attempt, true
}

func (o *Orchestrator) resultFrom(req analysis.Request, providerID string, raw *provider.Raw) analysis.Result {
	result := analysis.Result{
		RequestID:   req.ID,
		Operation:   req.Operation,
		Translation: raw.Translation,
		Emotion:     raw.Emotion,
		Confidence:  analysis.ClampConfidence(raw.Confidence),
		ProviderID:  providerID,
		Warnings:    []string{},
		CreatedAt:   o.clock.Now(),
	}
	if result.Emotion != nil && result.Emotion.CulturalContext == "" {
		result.Emotion.CulturalContext = req.CulturalContext
	}
	return result
}

// params fills in a guessed source language when the caller gave none.
func (o *Orchestrator) params(req analysis.Request) provider.Params {
	params := provider.Params{
		Text:            req.InputText,
		SourceLanguage:  req.SourceLanguage,
		TargetLanguage:  req.TargetLanguage,
		CulturalContext: req.CulturalContext,
	}
	if strings.TrimSpace(params.SourceLanguage) != "" || o.detector == nil {
		return params
	}
	if code, confidence := o.detector.Detect(req.InputText); code != "" && confidence >= detectionFloor {
		params.SourceLanguage = code
	}
	return params
}

func (o *Orchestrator) store(ctx context.Context, key string, result analysis.Result) {
	if result.Confidence < o.acceptance[result.Operation] {
		return
	}
	if err := o.cache.Put(ctx, key, result, o.cacheTTL); err != nil {
		o.log.Warn().Err(err).Str("request_id", result.RequestID).Msg("Failed to cache result")
	}
}

func (o *Orchestrator) thresholdFor(req analysis.Request) float64 {
	if req.ConfidenceThreshold > 0 {
		return req.ConfidenceThreshold
	}
	return o.threshold
}

// annotate adds the warnings that depend on the request rather than on where
// the result came from.
func annotate(req analysis.Request, result *analysis.Result) {
	if result.Operation == analysis.OperationEmotion && len(strings.Fields(req.InputText)) < shortTextWords {
		result.WithWarning(analysis.WarningShortText)
	}
}
