package provider

import (
	"context"
	"math"
	"net/http"
	"strings"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/language"
)

const (
	GoogleNLID      = "google_nl"
	DefaultGoogleNL = "https://language.googleapis.com/v1/documents:analyzeSentiment"
)

// GoogleNL calls the Natural Language sentiment endpoint.
type GoogleNL struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewGoogleNL(apiKey, endpoint string, client *http.Client) *GoogleNL {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultGoogleNL
	}
	return &GoogleNL{
		apiKey:   strings.TrimSpace(apiKey),
		endpoint: endpoint,
		client:   orDefaultClient(client),
	}
}

func (p *GoogleNL) ID() string { return GoogleNLID }

func (p *GoogleNL) Operations() []analysis.Operation {
	return []analysis.Operation{analysis.OperationEmotion}
}

func (p *GoogleNL) CredentialsPresent() bool { return p.apiKey != "" }

type googleNLResponse struct {
	DocumentSentiment struct {
		Score     float64 `json:"score"`
		Magnitude float64 `json:"magnitude"`
	} `json:"documentSentiment"`
	Language string `json:"language"`
}

func (p *GoogleNL) Call(ctx context.Context, op analysis.Operation, params Params) (*Raw, error) {
	if op != analysis.OperationEmotion {
		return nil, unsupported(p.ID(), op)
	}
	if !p.CredentialsPresent() {
		return nil, missingCredentials(p.ID())
	}

	document := map[string]string{"type": "PLAIN_TEXT", "content": params.Text}
	if lang := language.NormalizeCode(params.SourceLanguage); lang != "" {
		document["language"] = lang
	}

	var parsed googleNLResponse
	err := doJSON(ctx, p.client, jsonCall{
		providerID: p.ID(),
		method:     http.MethodPost,
		url:        p.endpoint,
		headers:    map[string]string{"X-Goog-Api-Key": p.apiKey},
		body: map[string]any{
			"document":     document,
			"encodingType": "UTF8",
		},
	}, &parsed)
	if err != nil {
		return nil, err
	}

	score := parsed.DocumentSentiment.Score
	magnitude := math.Abs(parsed.DocumentSentiment.Magnitude)

	payload := analysis.NewEmotionPayload(googleEmotions(score, magnitude))
	payload.Intensity = math.Abs(score)
	payload.Language = language.NormalizeCode(parsed.Language)
	payload.CulturalContext = params.CulturalContext
	return &Raw{
		Emotion:    payload,
		Confidence: analysis.ClampConfidence(magnitude / 2),
	}, nil
}

func googleEmotions(score, magnitude float64) map[analysis.Emotion]float64 {
	raw := map[analysis.Emotion]float64{}
	switch {
	case score > 0.1:
		raw[analysis.EmotionJoy] = score * magnitude
		raw[analysis.EmotionTrust] = score * 0.7
	case score < -0.1:
		raw[analysis.EmotionSadness] = math.Abs(score) * magnitude * 0.6
		raw[analysis.EmotionAnger] = math.Abs(score) * magnitude * 0.4
	}
	raw[analysis.EmotionSurprise] = magnitude * 0.3
	return raw
}
