package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwhan/csvlingo/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiTranslator translates single cells through the Gemini API.
type GeminiTranslator struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGeminiTranslator(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiTranslator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiTranslator{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

func (g *GeminiTranslator) Name() string {
	return "Gemini"
}

func (g *GeminiTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	temperature := float32(0.2)
	topP := float32(0.95)

	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		TopP:             &topP,
		MaxOutputTokens:  2048,
		ResponseMIMEType: "text/plain",
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: buildPrompt(text, sourceLang, targetLang)},
			},
		},
	}, config)
	if err != nil {
		return "", g.classify(err)
	}

	translated := cleanResponse(extractText(resp))
	if translated == "" {
		return "", errors.NewTranslateError("Gemini returned empty response", errors.ClassServer, 0)
	}

	return translated, nil
}

func (g *GeminiTranslator) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 10,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{Parts: []*genai.Part{{Text: "ping"}}},
	}, config)
	if err != nil {
		g.logger.Debug("Gemini ping failed", zap.Error(err))
		return false
	}

	return extractText(resp) != ""
}

func (g *GeminiTranslator) classify(err error) error {
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return classifyStatus(g.Name(), apiErr.Code, apiErr.Message+" "+err.Error(), err)
	}
	return classifyTransport(g.Name(), err)
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}

	return strings.Join(texts, "")
}
