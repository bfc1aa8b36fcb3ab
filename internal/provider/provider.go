// Package provider defines the uniform adapter contract for remote analysis
// backends and the registry that orders them per operation.
package provider

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"horse.fit/chatsense/internal/analysis"
)

// Params is the provider-facing view of a request.
type Params struct {
	Text            string
	SourceLanguage  string
	TargetLanguage  string
	CulturalContext string
}

// Raw is what an adapter returns before the orchestrator decorates it.
type Raw struct {
	Translation *analysis.TranslationPayload
	Emotion     *analysis.EmotionPayload
	Confidence  float64
	Model       string
}

// Provider is one remote backend. Call must honor ctx cancellation; errors
// are classified with analysis.ClassifyProviderError by the caller.
type Provider interface {
	ID() string
	Operations() []analysis.Operation
	CredentialsPresent() bool
	Call(ctx context.Context, op analysis.Operation, params Params) (*Raw, error)
}

// Supports reports whether p handles op.
func Supports(p Provider, op analysis.Operation) bool {
	return slices.Contains(p.Operations(), op)
}

var errEmptyResponse = errors.New("response carried no result")

func unsupported(id string, op analysis.Operation) error {
	return analysis.NewProviderError(id, analysis.ErrProviderUnavailable, fmt.Errorf("operation %s not supported", op))
}

func missingCredentials(id string) error {
	return analysis.NewProviderError(id, analysis.ErrProviderUnavailable, fmt.Errorf("credentials not configured"))
}
