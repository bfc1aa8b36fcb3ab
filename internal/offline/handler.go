// Package offline produces the best answer available without a remote
// provider: a stale cached result, a local heuristic, or an explicit
// "unavailable" result. It never fails.
package offline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/globaltime"
	"horse.fit/chatsense/internal/language"
)

const (
	HeuristicConfidence = 0.35
	NeutralConfidence   = 0.3
	PendingConfidence   = 0.1
)

// StaleSource is the part of the result cache the handler reads.
type StaleSource interface {
	GetStale(ctx context.Context, key string) (analysis.Result, time.Time, bool)
}

type Handler struct {
	cache StaleSource
	clock globaltime.Clock
	log   zerolog.Logger
}

func NewHandler(cache StaleSource, clock globaltime.Clock, logger zerolog.Logger) *Handler {
	return &Handler{
		cache: cache,
		clock: globaltime.OrSystem(clock),
		log:   logger,
	}
}

// Degrade answers req without calling a provider. key is the request's cache
// key. Every result it returns is marked offline.
func (h *Handler) Degrade(ctx context.Context, req analysis.Request, key string) analysis.Result {
	if h.cache != nil && key != "" {
		if stale, createdAt, ok := h.cache.GetStale(ctx, key); ok {
			stale.RequestID = req.ID
			stale.FromCache = true
			stale.Offline = true
			stale.WithWarning(analysis.WarningStale)
			h.log.Info().
				Str("request_id", req.ID).
				Str("operation", string(req.Operation)).
				Dur("age", h.clock.Now().Sub(createdAt)).
				Msg("Serving stale cached result")
			return stale
		}
	}

	var (
		result analysis.Result
		ok     bool
	)
	switch req.Operation {
	case analysis.OperationEmotion:
		result, ok = h.emotionHeuristic(req)
	case analysis.OperationTranslate:
		result, ok = h.pendingTranslation(req), true
	}
	if !ok {
		result = Unavailable(req)
	}
	result.CreatedAt = h.clock.Now()
	h.log.Info().
		Str("request_id", req.ID).
		Str("operation", string(req.Operation)).
		Str("provider", result.ProviderID).
		Float64("confidence", result.Confidence).
		Msg("Degraded to local result")
	return result
}

func (h *Handler) emotionHeuristic(req analysis.Request) (analysis.Result, bool) {
	scores := Score(req.InputText, req.SourceLanguage)
	if !scores.Known {
		return analysis.Result{}, false
	}

	confidence := HeuristicConfidence
	if scores.Matches == 0 {
		confidence = NeutralConfidence
	}
	payload := analysis.NewEmotionPayload(scores.Raw)
	payload.Language = scores.Language
	payload.CulturalContext = req.CulturalContext

	result := analysis.Result{
		RequestID:  req.ID,
		Operation:  analysis.OperationEmotion,
		Emotion:    payload,
		Confidence: confidence,
		ProviderID: analysis.ProviderLocal,
		Offline:    true,
		Warnings:   []string{analysis.WarningHeuristic},
	}
	if scores.Sarcasm {
		result.WithWarning(analysis.WarningSarcasm)
	}
	return result, true
}

// pendingTranslation echoes the input back, flagged as not yet translated.
func (h *Handler) pendingTranslation(req analysis.Request) analysis.Result {
	return analysis.Result{
		RequestID: req.ID,
		Operation: analysis.OperationTranslate,
		Translation: &analysis.TranslationPayload{
			Text:           req.InputText,
			SourceLanguage: language.NormalizeCode(req.SourceLanguage),
			TargetLanguage: language.NormalizeCode(req.TargetLanguage),
			Pending:        true,
		},
		Confidence: PendingConfidence,
		ProviderID: analysis.ProviderLocal,
		Offline:    true,
		Warnings:   []string{analysis.WarningUnavailable},
	}
}

// Unavailable is the zero-confidence answer used when nothing else applies.
func Unavailable(req analysis.Request) analysis.Result {
	result := analysis.Result{
		RequestID:  req.ID,
		Operation:  req.Operation,
		Confidence: 0,
		ProviderID: analysis.ProviderNone,
		Offline:    true,
		Warnings:   []string{analysis.WarningUnavailable},
	}
	if req.Operation == analysis.OperationEmotion {
		result.Emotion = analysis.NewEmotionPayload(nil)
	}
	return result
}
