package provider

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/language"
)

const (
	OpenAIID             = "openai"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"

	openAIDefaultConfidence = 0.8
)

//go:embed emotion.schema.json
var emotionSchemaJSON string

var (
	emotionSchemaOnce sync.Once
	emotionSchema     *jsonschema.Schema
	emotionSchemaErr  error
)

// OpenAIEmotion asks a hosted chat model for an eight-emotion breakdown as
// JSON and validates the reply against emotion.schema.json.
type OpenAIEmotion struct {
	chat chatClient
}

func NewOpenAIEmotion(apiKey, baseURL, model string, client *http.Client) *OpenAIEmotion {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEmotion{
		chat: chatClient{
			providerID: OpenAIID,
			url:        chatCompletionsURL(normalizeEndpoint(baseURL)),
			apiKey:     strings.TrimSpace(apiKey),
			model:      model,
			client:     orDefaultClient(client),
		},
	}
}

func (p *OpenAIEmotion) ID() string { return OpenAIID }

func (p *OpenAIEmotion) Operations() []analysis.Operation {
	return []analysis.Operation{analysis.OperationEmotion}
}

func (p *OpenAIEmotion) CredentialsPresent() bool { return p.chat.apiKey != "" }

// EmotionReply is the decoded JSON the emotion model returns.
type EmotionReply struct {
	Emotions   map[analysis.Emotion]float64 `json:"emotions"`
	Confidence *float64                     `json:"confidence"`
	Intensity  *float64                     `json:"intensity"`
	Sentiment  *analysis.Sentiment          `json:"sentiment"`
}

func (p *OpenAIEmotion) Call(ctx context.Context, op analysis.Operation, params Params) (*Raw, error) {
	if op != analysis.OperationEmotion {
		return nil, unsupported(p.ID(), op)
	}
	if !p.CredentialsPresent() {
		return nil, missingCredentials(p.ID())
	}

	content, model, err := p.chat.complete(ctx, chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: "You are an expert in emotion analysis. Reply with valid JSON only."},
			{Role: "user", Content: emotionPrompt(params)},
		},
		Temperature:    0.3,
		MaxTokens:      300,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return nil, err
	}

	reply, err := ParseEmotionReply(content)
	if err != nil {
		return nil, analysis.NewProviderError(p.ID(), analysis.ErrProviderTransport, err)
	}

	payload := analysis.NewEmotionPayload(reply.Emotions)
	if reply.Intensity != nil {
		payload.Intensity = *reply.Intensity
	}
	if reply.Sentiment != nil {
		payload.Sentiment = *reply.Sentiment
	}
	payload.Language = language.NormalizeCode(params.SourceLanguage)
	payload.CulturalContext = params.CulturalContext

	confidence := openAIDefaultConfidence
	if reply.Confidence != nil {
		confidence = *reply.Confidence
	}
	return &Raw{
		Emotion:    payload,
		Confidence: analysis.ClampConfidence(confidence),
		Model:      model,
	}, nil
}

// ParseEmotionReply validates a model reply against the emotion schema and
// decodes it. Markdown code fences around the JSON are tolerated.
func ParseEmotionReply(content string) (*EmotionReply, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	decoder := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode emotion reply: %w", err)
	}

	schema, err := loadEmotionSchema()
	if err != nil {
		return nil, fmt.Errorf("load emotion schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("emotion reply failed schema validation: %w", err)
	}

	var reply EmotionReply
	if err := json.Unmarshal([]byte(trimmed), &reply); err != nil {
		return nil, fmt.Errorf("unmarshal emotion reply: %w", err)
	}
	return &reply, nil
}

func loadEmotionSchema() (*jsonschema.Schema, error) {
	emotionSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("emotion.schema.json", strings.NewReader(emotionSchemaJSON)); err != nil {
			emotionSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("emotion.schema.json")
		if err != nil {
			emotionSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		emotionSchema = schema
	})

	if emotionSchemaErr != nil {
		return nil, emotionSchemaErr
	}
	if emotionSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return emotionSchema, nil
}

func emotionPrompt(params Params) string {
	lang := language.EnglishName(params.SourceLanguage)
	if language.NormalizeCode(params.SourceLanguage) == "" {
		lang = "its original language"
	}
	culture := strings.TrimSpace(params.CulturalContext)
	if culture == "" {
		culture = "neutral"
	}
	return fmt.Sprintf(`Analyze the emotions in this text written in %s, with a %s cultural context:

%q

Return JSON with exactly this structure:
{
  "emotions": {"joy": 0-1, "sadness": 0-1, "anger": 0-1, "fear": 0-1, "surprise": 0-1, "disgust": 0-1, "trust": 0-1, "anticipation": 0-1},
  "confidence": 0-1,
  "intensity": 0-1,
  "sentiment": {"polarity": "positive|negative|neutral", "score": -1 to 1},
  "reasoning": "short explanation",
  "culturalNotes": "relevant cultural observations"
}`, lang, culture, params.Text)
}
