package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/language"
)

const (
	LLMTranslatorID = "llm"
	DefaultLLMModel = "tencent/HY-MT1.5-7B"
)

// LLMTranslator translates through a self-hosted OpenAI-compatible model.
// It only counts as configured when an endpoint was given explicitly.
type LLMTranslator struct {
	configured bool
	chat       chatClient
}

func NewLLMTranslator(endpoint, model string, client *http.Client) *LLMTranslator {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultLLMModel
	}
	return &LLMTranslator{
		configured: strings.TrimSpace(endpoint) != "",
		chat: chatClient{
			providerID: LLMTranslatorID,
			url:        chatCompletionsURL(normalizeEndpoint(endpoint)),
			model:      model,
			client:     orDefaultClient(client),
		},
	}
}

func (p *LLMTranslator) ID() string { return LLMTranslatorID }

func (p *LLMTranslator) Operations() []analysis.Operation {
	return []analysis.Operation{analysis.OperationTranslate}
}

func (p *LLMTranslator) CredentialsPresent() bool { return p.configured }

func (p *LLMTranslator) Call(ctx context.Context, op analysis.Operation, params Params) (*Raw, error) {
	if op != analysis.OperationTranslate {
		return nil, unsupported(p.ID(), op)
	}
	if !p.CredentialsPresent() {
		return nil, missingCredentials(p.ID())
	}

	text := strings.TrimSpace(params.Text)
	target := language.NormalizeCode(params.TargetLanguage)
	translated, model, err := p.chat.complete(ctx, chatRequest{
		Messages: []chatMessage{{
			Role:    "user",
			Content: translationPrompt(text, target, params.CulturalContext),
		}},
		Temperature: 0.7,
		TopP:        0.6,
	})
	if err != nil {
		return nil, err
	}

	confidence := llmConfidence
	if Similarity(text, translated) >= nearIdenticalSimilarity {
		confidence = untranslatedConfidence
	}
	return &Raw{
		Translation: &analysis.TranslationPayload{
			Text:           translated,
			SourceLanguage: language.NormalizeCode(params.SourceLanguage),
			TargetLanguage: target,
		},
		Confidence: confidence,
		Model:      model,
	}, nil
}

func translationPrompt(text, target, culturalContext string) string {
	prompt := fmt.Sprintf("Translate the following segment into %s, without additional explanation.", language.EnglishName(target))
	if ctx := strings.TrimSpace(culturalContext); ctx != "" {
		prompt += fmt.Sprintf(" Keep the register natural for a %s reader.", ctx)
	}
	return prompt + "\n\n" + text
}
