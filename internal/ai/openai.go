package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Completer is the black-box LLM call used by the classification engine:
// prompt in, raw text out. Output is not guaranteed to be valid JSON.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Translator converts text to English. Implementations never fail upward:
// on any error the original text comes back unchanged.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang string) string
}

// Config holds OpenAI connection settings.
type Config struct {
	APIKey         string
	Model          string
	TranslateModel string
	BaseURL        string // optional
	MaxTokens      int
}

// OpenAIClient implements Completer using OpenAI Chat Completions.
// Completions run at temperature 0 with a bounded token budget so repeated
// classification of the same article is reproducible.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAI(cfg Config) *OpenAIClient {
	var c *openai.Client
	if cfg.BaseURL != "" {
		cc := openai.DefaultConfig(cfg.APIKey)
		cc.BaseURL = cfg.BaseURL
		c = openai.NewClientWithConfig(cc)
	} else {
		c = openai.NewClient(cfg.APIKey)
	}
	model := cfg.Model
	if model == "" {
		panic("OpenAI model must be specified")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 600
	}
	return &OpenAIClient{client: c, model: model, maxTokens: maxTokens}
}

func (o *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAITranslator implements Translator on the same API. English input is
// passed through without a call.
type OpenAITranslator struct {
	client *openai.Client
	model  string
}

func NewOpenAITranslator(cfg Config) *OpenAITranslator {
	var c *openai.Client
	if cfg.BaseURL != "" {
		cc := openai.DefaultConfig(cfg.APIKey)
		cc.BaseURL = cfg.BaseURL
		c = openai.NewClientWithConfig(cc)
	} else {
		c = openai.NewClient(cfg.APIKey)
	}
	model := cfg.TranslateModel
	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		panic("OpenAI model must be specified")
	}
	return &OpenAITranslator{client: c, model: model}
}

var langNames = map[string]string{
	"zh": "Chinese",
	"ru": "Russian",
	"en": "English",
}

func (o *OpenAITranslator) Translate(ctx context.Context, text, sourceLang string) string {
	if strings.TrimSpace(text) == "" || sourceLang == "en" {
		return text
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	source := langNames[sourceLang]
	if source == "" {
		source = sourceLang
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf("Translate the following text from %s to English. Keep it concise and accurate.", source),
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.1,
		MaxTokens:   400,
	})
	if err != nil {
		slog.Error("openai: translation error", "lang", sourceLang, "err", err)
		return text
	}
	if len(resp.Choices) == 0 {
		return text
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return text
	}
	return out
}

// NoopTranslator passes text through unchanged. Used when no API key is
// configured.
type NoopTranslator struct{}

func (NoopTranslator) Translate(_ context.Context, text, _ string) string { return text }
