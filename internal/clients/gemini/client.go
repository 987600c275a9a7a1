// Package gemini adapts Google's genai SDK into the panel.Analyzer
// contract for logical models configured with provider "gemini".
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/panel"
)

const defaultModel = "gemini-2.0-flash"

// Client implements panel.Analyzer for the "gemini" provider. One
// genai client is created per call, scoped to the endpoint's own
// api_key, so key rotation across endpoints needs no shared mutable
// state. The endpoint's base_url is not used: every call goes to the
// SDK's default Gemini endpoint.
type Client struct{}

// New builds a gemini Analyzer.
func New() *Client {
	return &Client{}
}

var _ panel.Analyzer = (*Client)(nil)

// Analyze sends the assembled context to Gemini and parses the JSON
// verdict out of the response, stripping a surrounding markdown code
// fence if present. modelName falls back to defaultModel when empty.
func (c *Client) Analyze(ctx context.Context, provider, modelName string, endpoint domain.ModelEndpoint, input panel.AnalysisInput) (panel.AnalyzerOutput, error) {
	if modelName == "" {
		modelName = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: endpoint.APIKey})
	if err != nil {
		return panel.AnalyzerOutput{}, fmt.Errorf("gemini client: %w", err)
	}

	prompt := buildPrompt(input)

	result, err := client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), nil)
	if err != nil {
		return panel.AnalyzerOutput{}, fmt.Errorf("gemini generate: %w", err)
	}

	text := result.Text()
	jsonText := stripMarkdownFence(text)

	var verdict verdict
	if err := json.Unmarshal([]byte(jsonText), &verdict); err != nil {
		return panel.AnalyzerOutput{}, fmt.Errorf("gemini response parse: %w", err)
	}

	return verdict.toOutput(), nil
}

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
	return fmt.Sprintf(`You are an equity research analyst. Analyze %s (%s) using the data below and respond ONLY with JSON:

{"score": <0-100>, "advice": "buy|hold|sell", "trend": "<short trend label>", "summary": "<2-3 sentence summary>", "confidence": <0-100>, "strategy": {"ideal_buy": "<price or range>", "secondary_buy": "<price or range>", "stop_loss": "<price>", "take_profit": "<price>"}}

DATA:
%s`, input.StockCode, input.StockName, string(ctxJSON))
}

func stripMarkdownFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.SplitN(trimmed, "\n", 2)
	if len(lines) < 2 {
		return trimmed
	}
	body := lines[1]
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}
