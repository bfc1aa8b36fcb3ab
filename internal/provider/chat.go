package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"horse.fit/chatsense/internal/analysis"
)

const DefaultChatEndpoint = "http://127.0.0.1:8845/v1"

// chatClient speaks the OpenAI-compatible chat completions protocol, used by
// both the self-hosted translation model and the hosted emotion model.
type chatClient struct {
	providerID string
	url        string
	apiKey     string
	model      string
	client     *http.Client
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature,omitempty"`
	TopP           float64        `json:"top_p,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *chatClient) complete(ctx context.Context, req chatRequest) (string, string, error) {
	req.Model = c.model
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var parsed chatResponse
	if err := doJSON(ctx, c.client, jsonCall{
		providerID: c.providerID,
		method:     http.MethodPost,
		url:        c.url,
		headers:    headers,
		body:       req,
	}, &parsed); err != nil {
		return "", "", err
	}
	if len(parsed.Choices) == 0 {
		return "", "", analysis.NewProviderError(c.providerID, analysis.ErrProviderTransport, fmt.Errorf("response missing choices"))
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", "", analysis.NewProviderError(c.providerID, analysis.ErrProviderTransport, errEmptyResponse)
	}
	model := parsed.Model
	if model == "" {
		model = c.model
	}
	return content, model, nil
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return DefaultChatEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultChatEndpoint
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	if parsed.Path == "" {
		parsed.Path = "/v1"
	}
	return parsed.String()
}

func chatCompletionsURL(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultChatEndpoint + "/chat/completions"
	}

	path := strings.TrimRight(parsed.Path, "/")
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		parsed.Path = path
	case strings.HasSuffix(path, "/v1"):
		parsed.Path = path + "/chat/completions"
	case path == "":
		parsed.Path = "/v1/chat/completions"
	default:
		parsed.Path = path + "/v1/chat/completions"
	}

	return parsed.String()
}
