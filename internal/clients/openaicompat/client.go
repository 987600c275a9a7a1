// Package openaicompat adapts any OpenAI-chat-completions-compatible
// endpoint (self-hosted, OpenRouter, DeepSeek, etc.) into the
// panel.Analyzer contract for logical models configured with provider
// "openai-compatible".
package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/panel"
)

const defaultModel = "gpt-4o-mini"

// Client implements panel.Analyzer for "openai-compatible" endpoints.
type Client struct{}

// New builds an openai-compatible Analyzer.
func New() *Client {
	return &Client{}
}

var _ panel.Analyzer = (*Client)(nil)

// Analyze issues a JSON-mode chat completion against endpoint.BaseURL
// and parses the verdict. modelName defaults to defaultModel when
// empty.
func (c *Client) Analyze(ctx context.Context, provider, modelName string, endpoint domain.ModelEndpoint, input panel.AnalysisInput) (panel.AnalyzerOutput, error) {
	if modelName == "" {
		modelName = defaultModel
	}

	cfg := openai.DefaultConfig(endpoint.APIKey)
	if endpoint.BaseURL != "" {
		cfg.BaseURL = endpoint.BaseURL
	}
	client := openai.NewClientWithConfig(cfg)

	temperature := float32(0.2)
	if endpoint.Temperature != nil {
		temperature = float32(*endpoint.Temperature)
	}

	prompt := buildPrompt(input)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return panel.AnalyzerOutput{}, fmt.Errorf("openai-compatible chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return panel.AnalyzerOutput{}, fmt.Errorf("openai-compatible: no choices in response")
	}

	var v verdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &v); err != nil {
		return panel.AnalyzerOutput{}, fmt.Errorf("openai-compatible response parse: %w", err)
	}

	return v.toOutput(), nil
}

const systemPrompt = `You are an equity research analyst. Respond ONLY with a JSON object shaped:
{"score": <0-100>, "advice": "buy|hold|sell", "trend": "<short trend label>", "summary": "<2-3 sentence summary>", "confidence": <0-100>, "strategy": {"ideal_buy": "<price or range>", "secondary_buy": "<price or range>", "stop_loss": "<price>", "take_profit": "<price>"}}`

type verdict struct {
	Score      *float64               `json:"score"`
	Advice     string                 `json:"advice"`
	Trend      string                 `json:"trend"`
	Summary    string                 `json:"summary"`
	Confidence *float64               `json:"confidence"`
	Strategy   map[string]interface{} `json:"strategy"`
}

func (v verdict) toOutput() panel.AnalyzerOutput {
	raw := map[string]interface{}{}
	if v.Strategy != nil {
		raw["strategy"] = v.Strategy
	}
	return panel.AnalyzerOutput{
		Score:      v.Score,
		Advice:     strings.ToLower(strings.TrimSpace(v.Advice)),
		Trend:      v.Trend,
		Summary:    v.Summary,
		Confidence: v.Confidence,
		Raw:        raw,
	}
}

func buildPrompt(input panel.AnalysisInput) string {
	ctxJSON, _ := json.MarshalIndent(input.Context, "", "  ")
	return fmt.Sprintf("Analyze %s (%s) using this data:\n%s", input.StockCode, input.StockName, string(ctxJSON))
}
