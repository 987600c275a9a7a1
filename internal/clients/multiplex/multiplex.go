// Package multiplex routes panel.Analyzer calls to the concrete client
// for a logical model's provider, so a single panel.Runner can serve a
// mixed Gemini/OpenAI-compatible panel.
package multiplex

import (
	"context"
	"fmt"

	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/panel"
)

// Analyzer dispatches to a per-provider panel.Analyzer, mirroring the
// teacher's map-keyed lookup shape (internal/work.Registry) scaled
// down to the handful of providers this system supports.
type Analyzer struct {
	byProvider map[string]panel.Analyzer
}

// New builds a multiplexing Analyzer over a fixed provider->client map.
// Keys are the ModelConfig.Provider values ("gemini",
// "openai-compatible", ...).
func New(byProvider map[string]panel.Analyzer) *Analyzer {
	return &Analyzer{byProvider: byProvider}
}

var _ panel.Analyzer = (*Analyzer)(nil)

// Analyze looks up the client registered for provider and delegates.
func (a *Analyzer) Analyze(ctx context.Context, provider, modelName string, endpoint domain.ModelEndpoint, input panel.AnalysisInput) (panel.AnalyzerOutput, error) {
	client, ok := a.byProvider[provider]
	if !ok {
		return panel.AnalyzerOutput{}, fmt.Errorf("multiplex: no client registered for provider %q", provider)
	}
	return client.Analyze(ctx, provider, modelName, endpoint, input)
}
