package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/language"
)

const (
	AzureTranslatorID      = "azure"
	DefaultAzureTranslator = "https://api.cognitive.microsofttranslator.com"
)

// AzureTranslator calls the Translator v3 REST API.
type AzureTranslator struct {
	key      string
	region   string
	endpoint string
	client   *http.Client
}

func NewAzureTranslator(key, region, endpoint string, client *http.Client) *AzureTranslator {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultAzureTranslator
	}
	return &AzureTranslator{
		key:      strings.TrimSpace(key),
		region:   strings.TrimSpace(region),
		endpoint: endpoint,
		client:   orDefaultClient(client),
	}
}

func (p *AzureTranslator) ID() string { return AzureTranslatorID }

func (p *AzureTranslator) Operations() []analysis.Operation {
	return []analysis.Operation{analysis.OperationTranslate}
}

func (p *AzureTranslator) CredentialsPresent() bool { return p.key != "" }

type azureTranslateItem struct {
	DetectedLanguage *struct {
		Language string  `json:"language"`
		Score    float64 `json:"score"`
	} `json:"detectedLanguage"`
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

func (p *AzureTranslator) Call(ctx context.Context, op analysis.Operation, params Params) (*Raw, error) {
	if op != analysis.OperationTranslate {
		return nil, unsupported(p.ID(), op)
	}
	if !p.CredentialsPresent() {
		return nil, missingCredentials(p.ID())
	}

	target := language.NormalizeCode(params.TargetLanguage)
	source := language.NormalizeCode(params.SourceLanguage)

	query := url.Values{}
	query.Set("api-version", "3.0")
	query.Set("to", target)
	if source != "" {
		query.Set("from", source)
	}
	headers := map[string]string{"Ocp-Apim-Subscription-Key": p.key}
	if p.region != "" {
		headers["Ocp-Apim-Subscription-Region"] = p.region
	}

	var parsed []azureTranslateItem
	err := doJSON(ctx, p.client, jsonCall{
		providerID: p.ID(),
		method:     http.MethodPost,
		url:        p.endpoint + "/translate?" + query.Encode(),
		headers:    headers,
		body:       []map[string]string{{"Text": params.Text}},
	}, &parsed)
	if err != nil {
		return nil, err
	}
	if len(parsed) == 0 || len(parsed[0].Translations) == 0 {
		return nil, analysis.NewProviderError(p.ID(), analysis.ErrProviderTransport, errEmptyResponse)
	}

	item := parsed[0]
	confidence := azureDefaultConfidence
	detected := ""
	if item.DetectedLanguage != nil {
		detected = language.NormalizeCode(item.DetectedLanguage.Language)
		if item.DetectedLanguage.Score > 0 {
			confidence = item.DetectedLanguage.Score
		}
	}
	if source == "" {
		source = detected
	}
	translated := strings.TrimSpace(item.Translations[0].Text)
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
		Confidence: analysis.ClampConfidence(confidence),
	}, nil
}
