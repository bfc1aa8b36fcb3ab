package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/language"
)

const AzureTextID = "azure_text"

// AzureText calls the Text Analytics sentiment endpoint and infers emotions
// from the document-level sentiment.
type AzureText struct {
	key      string
	endpoint string
	client   *http.Client
}

func NewAzureText(key, endpoint string, client *http.Client) *AzureText {
	return &AzureText{
		key:      strings.TrimSpace(key),
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		client:   orDefaultClient(client),
	}
}

func (p *AzureText) ID() string { return AzureTextID }

func (p *AzureText) Operations() []analysis.Operation {
	return []analysis.Operation{analysis.OperationEmotion}
}

func (p *AzureText) CredentialsPresent() bool { return p.key != "" && p.endpoint != "" }

type azureSentimentScores struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

type azureSentimentResponse struct {
	Documents []struct {
		ID               string               `json:"id"`
		Sentiment        string               `json:"sentiment"`
		ConfidenceScores azureSentimentScores `json:"confidenceScores"`
	} `json:"documents"`
	Errors []struct {
		ID    string `json:"id"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"errors"`
}

func (p *AzureText) Call(ctx context.Context, op analysis.Operation, params Params) (*Raw, error) {
	if op != analysis.OperationEmotion {
		return nil, unsupported(p.ID(), op)
	}
	if !p.CredentialsPresent() {
		return nil, missingCredentials(p.ID())
	}

	lang := language.NormalizeCode(params.SourceLanguage)
	doc := map[string]string{"id": "1", "text": params.Text}
	if lang != "" {
		doc["language"] = lang
	}

	var parsed azureSentimentResponse
	err := doJSON(ctx, p.client, jsonCall{
		providerID: p.ID(),
		method:     http.MethodPost,
		url:        p.endpoint + "/text/analytics/v3.1/sentiment",
		headers:    map[string]string{"Ocp-Apim-Subscription-Key": p.key},
		body:       map[string]any{"documents": []map[string]string{doc}},
	}, &parsed)
	if err != nil {
		return nil, err
	}
	if len(parsed.Documents) == 0 {
		if len(parsed.Errors) > 0 {
			return nil, analysis.NewProviderError(p.ID(), analysis.ErrProviderTransport, fmt.Errorf("document rejected: %s", parsed.Errors[0].Error.Message))
		}
		return nil, analysis.NewProviderError(p.ID(), analysis.ErrProviderTransport, errEmptyResponse)
	}

	document := parsed.Documents[0]
	payload := analysis.NewEmotionPayload(azureEmotions(document.Sentiment, document.ConfidenceScores))
	payload.Language = lang
	payload.CulturalContext = params.CulturalContext
	return &Raw{
		Emotion:    payload,
		Confidence: analysis.ClampConfidence(azureSentimentConfidence(document.Sentiment, document.ConfidenceScores)),
	}, nil
}

// azureEmotions spreads sentiment scores over emotion labels. Positive maps to
// joy and trust, negative to sadness and anger, and neutral mass shows up as
// mild surprise.
func azureEmotions(sentiment string, scores azureSentimentScores) map[analysis.Emotion]float64 {
	raw := map[analysis.Emotion]float64{}
	switch sentiment {
	case "positive":
		raw[analysis.EmotionJoy] = scores.Positive
		raw[analysis.EmotionTrust] = scores.Positive * 0.7
	case "negative":
		raw[analysis.EmotionSadness] = scores.Negative * 0.6
		raw[analysis.EmotionAnger] = scores.Negative * 0.4
	case "mixed":
		raw[analysis.EmotionJoy] = scores.Positive * 0.5
		raw[analysis.EmotionSadness] = scores.Negative * 0.5
	}
	raw[analysis.EmotionSurprise] = scores.Neutral * 0.5
	return raw
}

func azureSentimentConfidence(sentiment string, scores azureSentimentScores) float64 {
	switch sentiment {
	case "positive":
		return scores.Positive
	case "negative":
		return scores.Negative
	case "neutral":
		return scores.Neutral
	default:
		return max(scores.Positive, scores.Negative, scores.Neutral)
	}
}
