package provider

import (
	"context"
	"html"
	"net/http"
	"strings"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/language"
)

const (
	GoogleTranslateID      = "google"
	DefaultGoogleTranslate = "https://translation.googleapis.com/language/translate/v2"
)

// GoogleTranslate calls the Cloud Translation v2 REST API.
type GoogleTranslate struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewGoogleTranslate(apiKey, endpoint string, client *http.Client) *GoogleTranslate {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultGoogleTranslate
	}
	return &GoogleTranslate{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: endpoint,
		client:   orDefaultClient(client),
	}
}

func (p *GoogleTranslate) ID() string { return GoogleTranslateID }

func (p *GoogleTranslate) Operations() []analysis.Operation {
	return []analysis.Operation{analysis.OperationTranslate}
}

func (p *GoogleTranslate) CredentialsPresent() bool { return p.apiKey != "" }

type googleTranslateRequest struct {
	Q      string `json:"q"`
	Target string `json:"target"`
	Source string `json:"source,omitempty"`
	Format string `json:"format"`
}

type googleTranslateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
}

func (p *GoogleTranslate) Call(ctx context.Context, op analysis.Operation, params Params) (*Raw, error) {
	if op != analysis.OperationTranslate {
		return nil, unsupported(p.ID(), op)
	}
	if !p.CredentialsPresent() {
		return nil, missingCredentials(p.ID())
	}

	target := language.NormalizeCode(params.TargetLanguage)
	source := language.NormalizeCode(params.SourceLanguage)

	var parsed googleTranslateResponse
	err := doJSON(ctx, p.client, jsonCall{
		providerID: p.ID(),
		method:     http.MethodPost,
		url:        p.endpoint,
		headers:    map[string]string{"X-Goog-Api-Key": p.apiKey},
		body: googleTranslateRequest{
			Q:      params.Text,
			Target: target,
			Source: source,
			Format: "text",
		},
	}, &parsed)
	if err != nil {
		return nil, err
	}
	if len(parsed.Data.Translations) == 0 {
		return nil, analysis.NewProviderError(p.ID(), analysis.ErrProviderTransport, errEmptyResponse)
	}

	first := parsed.Data.Translations[0]
	translated := html.UnescapeString(strings.TrimSpace(first.TranslatedText))
	detected := language.NormalizeCode(first.DetectedSourceLanguage)
	if source == "" {
		source = detected
	}
	return &Raw{
		Translation: &analysis.TranslationPayload{
			Text:             translated,
			SourceLanguage:   source,
			TargetLanguage:   target,
			DetectedLanguage: detected,
		},
		Confidence: TranslationConfidence(params.Text, translated),
	}, nil
}
