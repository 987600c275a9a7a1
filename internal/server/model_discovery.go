package server

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// geminiKnownModels is a curated fallback list for the fetch-models
// endpoint when provider is "gemini": the genai SDK's model-listing
// surface isn't stable enough across the pinned version to rely on
// here, so the well-known generation-capable model ids are returned
// directly instead.
var geminiKnownModels = []string{
	"gemini-2.5-pro",
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-1.5-pro",
	"gemini-1.5-flash",
}

// FetchAvailableModels queries (or, for gemini, looks up) the models
// available to a candidate expert-panel endpoint, backing the
// system/config/fetch-models endpoint used by the configuration UI to
// populate a model picker once an API key has been entered.
func FetchAvailableModels(ctx context.Context, provider, apiKey, baseURL string) ([]string, error) {
	switch provider {
	case "gemini":
		return geminiKnownModels, nil
	case "openai-compatible", "openai":
		return fetchOpenAICompatibleModels(ctx, apiKey, baseURL)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

func fetchOpenAICompatibleModels(ctx context.Context, apiKey, baseURL string) ([]string, error) {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
