package provider

import (
	"context"
	"net/http"
	"strings"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/language"
)

const LibreTranslateID = "libre"

// LibreTranslate talks to a LibreTranslate server. The API key is optional;
// self-hosted instances usually run without one.
type LibreTranslate struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewLibreTranslate(baseURL, apiKey string, client *http.Client) *LibreTranslate {
	return &LibreTranslate{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  orDefaultClient(client),
	}
}

func (p *LibreTranslate) ID() string { return LibreTranslateID }

func (p *LibreTranslate) Operations() []analysis.Operation {
	return []analysis.Operation{analysis.OperationTranslate}
}

func (p *LibreTranslate) CredentialsPresent() bool { return p.baseURL != "" }

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText   string `json:"translatedText"`
	DetectedLanguage *struct {
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	} `json:"detectedLanguage"`
}

func (p *LibreTranslate) Call(ctx context.Context, op analysis.Operation, params Params) (*Raw, error) {
	if op != analysis.OperationTranslate {
		return nil, unsupported(p.ID(), op)
	}
	if !p.CredentialsPresent() {
		return nil, missingCredentials(p.ID())
	}

	source := language.NormalizeCode(params.SourceLanguage)
	target := language.NormalizeCode(params.TargetLanguage)
	requestSource := source
	if requestSource == "" {
		requestSource = "auto"
	}

	var parsed libreResponse
	err := doJSON(ctx, p.client, jsonCall{
		providerID: p.ID(),
		method:     http.MethodPost,
		url:        p.baseURL + "/translate",
		body: libreRequest{
			Q:      params.Text,
			Source: requestSource,
			Target: target,
			Format: "text",
			APIKey: p.apiKey,
		},
	}, &parsed)
	if err != nil {
		return nil, err
	}

	translated := strings.TrimSpace(parsed.TranslatedText)
	detected := ""
	if parsed.DetectedLanguage != nil {
		detected = language.NormalizeCode(parsed.DetectedLanguage.Language)
	}
	if source == "" {
		source = detected
	}
	confidence := libreConfidence
	if translated == "" {
		confidence = 0
	}
	return &Raw{
		Translation: &analysis.TranslationPayload{
			Text:             translated,
			SourceLanguage:   source,
			TargetLanguage:   target,
			DetectedLanguage: detected,
		},
		Confidence: confidence,
	}, nil
}
