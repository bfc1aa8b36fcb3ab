// Package analysis holds the request, result and error types shared by every
// layer of the text-analysis pipeline.
package analysis

import (
	"math"
	"strings"
	"time"
)

// Operation selects which kind of analysis a request asks for.
type Operation string

const (
	OperationTranslate Operation = "translate"
	OperationEmotion   Operation = "emotion"
)

func (o Operation) Valid() bool {
	return o == OperationTranslate || o == OperationEmotion
}

// ParseOperation accepts the canonical names plus a few aliases used by the CLI.
func ParseOperation(raw string) (Operation, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "translate", "translation":
		return OperationTranslate, true
	case "emotion", "emotion_analyze", "emotionanalyze", "sentiment":
		return OperationEmotion, true
	default:
		return "", false
	}
}

// Request is one logical UI action. It is treated as immutable once built.
type Request struct {
	ID              string
	Operation       Operation
	SubjectID       string
	InputText       string
	SourceLanguage  string
	TargetLanguage  string
	CulturalContext string
	ForceRefresh    bool
	Timeout         time.Duration

	// ConfidenceThreshold overrides the configured acceptance threshold when > 0.
	ConfidenceThreshold float64
}

// TranslationPayload is the translated text plus the languages involved.
type TranslationPayload struct {
	Text             string `json:"text"`
	SourceLanguage   string `json:"source_language,omitempty"`
	TargetLanguage   string `json:"target_language"`
	DetectedLanguage string `json:"detected_language,omitempty"`

	// Pending marks a placeholder: Text is the untranslated input.
	Pending bool `json:"pending,omitempty"`
}

// Sentiment is the overall polarity of an emotion analysis. Score is in [-1, 1].
type Sentiment struct {
	Polarity Polarity `json:"polarity"`
	Score    float64  `json:"score"`
}

type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityNeutral  Polarity = "neutral"
)

// EmotionPayload is a normalized emotion distribution.
type EmotionPayload struct {
	Distribution    map[Emotion]float64 `json:"distribution"`
	Dominant        Emotion             `json:"dominant,omitempty"`
	Intensity       float64             `json:"intensity"`
	Sentiment       Sentiment           `json:"sentiment"`
	Language        string              `json:"language,omitempty"`
	CulturalContext string              `json:"cultural_context,omitempty"`
}

// Attempt records what happened to one provider during a fallback pass.
type Attempt struct {
	ProviderID string  `json:"provider_id"`
	Outcome    string  `json:"outcome"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
	LatencyMs  int64   `json:"latency_ms,omitempty"`
}

const (
	OutcomeAccepted       = "accepted"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeUnavailable    = "unavailable"
	OutcomeRateLimited    = "rate_limited"
	OutcomeTimeout        = "timeout"
	OutcomeTransportError = "transport_error"
)

// Result is what every analysis call produces. A missing answer is expressed
// as a low-confidence result with warnings, never as a nil value.
type Result struct {
	RequestID   string              `json:"request_id,omitempty"`
	Operation   Operation           `json:"operation"`
	Translation *TranslationPayload `json:"translation,omitempty"`
	Emotion     *EmotionPayload     `json:"emotion,omitempty"`
	Confidence  float64             `json:"confidence"`
	ProviderID  string              `json:"provider_id"`
	FromCache   bool                `json:"from_cache"`
	Offline     bool                `json:"offline"`
	Warnings    []string            `json:"warnings"`
	Attempts    []Attempt           `json:"attempts,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Warning labels attached to results.
const (
	WarningBelowThreshold = "below-threshold"
	WarningUnavailable    = "unavailable"
	WarningStale          = "stale-cache"
	WarningHeuristic      = "local-heuristic"
	WarningSarcasm        = "possible-sarcasm"
	WarningShortText      = "short-text"
)

// Provider identifiers that are not backed by a remote service.
const (
	ProviderNone  = "none"
	ProviderLocal = "local"
)

// Clone returns a deep copy so callers may mutate warnings or payloads without
// touching cached or shared results.
func (r Result) Clone() Result {
	out := r
	if r.Translation != nil {
		t := *r.Translation
		out.Translation = &t
	}
	if r.Emotion != nil {
		e := *r.Emotion
		e.Distribution = make(map[Emotion]float64, len(r.Emotion.Distribution))
		for k, v := range r.Emotion.Distribution {
			e.Distribution[k] = v
		}
		out.Emotion = &e
	}
	out.Warnings = append(make([]string, 0, len(r.Warnings)), r.Warnings...)
	out.Attempts = append([]Attempt(nil), r.Attempts...)
	return out
}

// WithWarning appends a warning unless it is already present.
func (r *Result) WithWarning(w string) {
	for _, existing := range r.Warnings {
		if existing == w {
			return
		}
	}
	r.Warnings = append(r.Warnings, w)
}

// Text returns the translated text, or "" for non-translation results.
func (r Result) Text() string {
	if r.Translation == nil {
		return ""
	}
	return r.Translation.Text
}

// ClampConfidence bounds v to [0, 1].
func ClampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
