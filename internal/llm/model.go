// Package llm wraps langchaingo models as the inference adapter.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/parley-go/internal/chat"
	"github.com/raphaelgruber/parley-go/internal/config"
	"github.com/raphaelgruber/parley-go/internal/metrics"
	"github.com/raphaelgruber/parley-go/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Client adapts a langchaingo model to the chat.Completer contract.
// Every call is bounded by the configured timeout; failures are classified
// into the orchestration error taxonomy and never retried here.
type Client struct {
	llm        llms.Model
	provider   string
	modelName  string
	ollamaHost string
	timeout    time.Duration
	metrics    *metrics.Collector
}

// NewClient creates an inference adapter based on configuration.
func NewClient(cfg config.Config, mc *metrics.Collector) (*Client, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderBedrock:
		awscfg, cfgErr := awsconfig.LoadDefaultConfig(context.Background())
		if cfgErr != nil {
			return nil, fmt.Errorf("load aws config: %w", cfgErr)
		}
		model, err = bedrock.New(
			bedrock.WithModel(cfg.LLMModel),
			bedrock.WithClient(bedrockruntime.NewFromConfig(awscfg)),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Client{
		llm:        model,
		provider:   cfg.LLMProvider,
		modelName:  cfg.LLMModel,
		ollamaHost: cfg.OllamaHost,
		timeout:    cfg.InferenceTimeout,
		metrics:    mc,
	}, nil
}

// DefaultModel returns the configured model name.
func (c *Client) DefaultModel() string {
	return c.modelName
}

// Complete sends the windowed history (plus optional system prompt) to the
// inference service and returns the normalized completion.
func (c *Client) Complete(ctx context.Context, model string, history []models.ChatMessage, systemPrompt string) (*chat.Completion, error) {
	if model == "" {
		model = c.modelName
	}

	content := make([]llms.MessageContent, 0, len(history)+1)
	if systemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, m := range history {
		content = append(content, llms.TextParts(toMessageType(m.Role), m.Content))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.llm.GenerateContent(ctx, content, llms.WithModel(model))
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response choices", chat.ErrUnreachable)
	}

	choice := resp.Choices[0]
	comp := &chat.Completion{
		Text:             choice.Content,
		Model:            model,
		PromptTokens:     usageInt(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: usageInt(choice.GenerationInfo, "CompletionTokens"),
	}
	c.metrics.RecordLLMUsage(metrics.OpLLMGenerate, time.Since(start),
		int64(comp.PromptTokens), int64(comp.CompletionTokens))
	return comp, nil
}

// ListModels returns the selectable models. For Ollama the live tag list is
// fetched; other providers report the configured model only.
func (c *Client) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	if c.provider != config.ProviderOllama {
		return []models.ModelInfo{{Name: c.modelName, Type: "model"}}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ollamaHost+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ollama tags returned %s", chat.ErrUnreachable, resp.Status)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}

	out := make([]models.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		out = append(out, models.ModelInfo{Name: m.Name, Type: "model"})
	}
	return out, nil
}

// Healthy reports whether the inference service answers at all.
func (c *Client) Healthy(ctx context.Context) bool {
	if c.provider != config.ProviderOllama {
		return true
	}
	_, err := c.ListModels(ctx)
	return err == nil
}

func toMessageType(role string) llms.ChatMessageType {
	switch role {
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}

// usageInt reads a token count from langchaingo's generation info, which
// varies in numeric type across providers.
func usageInt(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
