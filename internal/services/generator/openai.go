package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mcoot/livequiz/internal/model"
)

const (
	// DefaultOpenAIModel is used when no model is configured
	DefaultOpenAIModel = openai.GPT4oMini
	// DefaultOpenAITimeout bounds one generation request
	DefaultOpenAITimeout = 60 * time.Second

	systemPrompt = "You are a helpful assistant that returns strictly valid JSON."
	temperature  = 0.7
)

// OpenAIConfig holds settings for the OpenAI-backed generator
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for compatible endpoints and tests
	Timeout time.Duration
}

// OpenAI generates questions with a chat completion
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAI creates an OpenAI generator
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultOpenAITimeout
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "generator"), slog.String("model", model)),
	}
}

// Generate asks the model for questions about topic
func (g *OpenAI) Generate(ctx context.Context, topic string) []model.GeneratedQuestion {
	topic = CapTopic(topic)
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: Prompt(topic)},
		},
		Temperature: temperature,
	})
	if err != nil {
		g.logger.Warn("question generation failed", slog.String("topic", topic), slog.Any("error", err))
		return []model.GeneratedQuestion{}
	}
	if len(resp.Choices) == 0 {
		g.logger.Warn("question generation returned no choices", slog.String("topic", topic))
		return []model.GeneratedQuestion{}
	}

	questions := Sanitize(resp.Choices[0].Message.Content)
	if len(questions) == 0 {
		g.logger.Warn("question generation returned no usable items", slog.String("topic", topic))
	} else {
		g.logger.Info("questions generated", slog.String("topic", topic), slog.Int("count", len(questions)))
	}
	return questions
}

// Prompt builds the user prompt for a topic
func Prompt(topic string) string {
	return fmt.Sprintf(`Generate %d multiple-choice questions about %q.
Each item MUST be strict JSON with keys: question, options (array of 4 short strings), answerIndex (0-3), explanation.
Return ONLY a JSON array. No prose. Example:
[{"question":"...","options":["A","B","C","D"],"answerIndex":1,"explanation":"..."}]`, RequestedQuestions, topic)
}
