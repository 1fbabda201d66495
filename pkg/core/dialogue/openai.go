package dialogue

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/vango-go/vai-intake/pkg/core/types"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures NewOpenAIBackend. BaseURL may point at any
// OpenAI-compatible chat completions server.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	MaxRetries int
}

// OpenAIBackend runs the intake assistant against a chat completions API.
type OpenAIBackend struct {
	client openaigo.Client
	model  string
}

// NewOpenAIBackend creates an OpenAI-compatible backend.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai backend: api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}

	return &OpenAIBackend{
		client: openaigo.NewClient(opts...),
		model:  model,
	}, nil
}

// Converse implements Backend.
func (o *OpenAIBackend) Converse(ctx context.Context, req Request) (*Reply, error) {
	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	messages := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openaigo.SystemMessage(systemPrompt(req)))
	for _, t := range history {
		if t.Role == types.RoleAssistant {
			messages = append(messages, openaigo.AssistantMessage(t.Text))
			continue
		}
		messages = append(messages, openaigo.UserMessage(t.Text))
	}
	messages = append(messages, openaigo.UserMessage(req.Message))

	completion, err := o.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model:               openaigo.ChatModel(o.model),
		Messages:            messages,
		Temperature:         param.NewOpt(0.3),
		MaxCompletionTokens: param.NewOpt(int64(700)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	raw := completion.Choices[0].Message.Content
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("openai returned empty text")
	}
	return parseModelOutput(raw), nil
}
