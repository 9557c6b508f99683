package provider

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jwhan/csvlingo/pkg/errors"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

// OpenAITranslator translates single cells through the OpenAI chat API.
type OpenAITranslator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAITranslator returns nil when no API key is configured, matching how
// the manager treats an absent fallback.
func NewOpenAITranslator(apiKey, model string, logger *zap.Logger) *OpenAITranslator {
	if apiKey == "" {
		return nil
	}

	if model == "" {
		model = "gpt-4.1-mini"
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAITranslator{
		client: &client,
		model:  model,
		logger: logger,
	}
}

func (o *OpenAITranslator) Name() string {
	return "OpenAI"
}

func (o *OpenAITranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a professional translator. Respond with the translated text only."),
			openai.UserMessage(buildPrompt(text, sourceLang, targetLang)),
		},
		MaxCompletionTokens: openai.Int(2048),
		Temperature:         openai.Float(0.2),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", o.classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.NewTranslateError("OpenAI returned no choices", errors.ClassServer, 0)
	}

	translated := cleanResponse(resp.Choices[0].Message.Content)
	if translated == "" {
		return "", errors.NewTranslateError("OpenAI returned empty response", errors.ClassServer, 0)
	}

	return translated, nil
}

func (o *OpenAITranslator) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("ping"),
		},
		MaxCompletionTokens: openai.Int(10),
	})
	if err != nil {
		o.logger.Debug("OpenAI ping failed", zap.Error(err))
		return false
	}

	return len(resp.Choices) > 0
}

func (o *OpenAITranslator) classify(err error) error {
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		return classifyStatus(o.Name(), apiErr.StatusCode, err.Error(), err)
	}
	return classifyTransport(o.Name(), err)
}
