// Package panel implements the expert-panel module: parsing raw model
// configuration into logical models with ordered endpoint pools,
// running them in parallel with per-endpoint failover, and reducing
// their results to a consensus.
package panel

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/stockpanel/sentinel/internal/domain"
)

// MaxModels is the hard cap on logical models after aggregation
// (spec.md §4.4).
const MaxModels = 10

// minAPIKeyLen below this length, or any key containing "placeholder"/
// "your-api-key"/"changeme", is discarded during parsing.
const minAPIKeyLen = 8

// RawEndpoint is one endpoint entry as it appears in a raw
// configuration source, before filtering/merging.
type RawEndpoint struct {
	ID          string
	APIKey      string
	BaseURL     string
	Priority    int
	Enabled     *bool // nil means "enabled" (the field was absent)
	Temperature *float64
	VerifySSL   *bool
}

// RawEntry is one raw configuration source: a primary Gemini entry, a
// primary OpenAI-compatible entry, one element of the EXTRA_AI_MODELS
// array, or one numbered environment-style entry.
type RawEntry struct {
	SourceName string
	Provider   string
	ModelName  string
	Endpoints  []RawEndpoint // nested-array shape
	Flat       *RawEndpoint  // flat single-endpoint shape; mutually exclusive with Endpoints in well-formed input
}

func isPlaceholderKey(key string) bool {
	if len(strings.TrimSpace(key)) < minAPIKeyLen {
		return true
	}
	lower := strings.ToLower(key)
	for _, needle := range []string{"placeholder", "your-api-key", "changeme", "xxx", "sk-0000"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// ParseEntries turns raw configuration entries into flat
// (model_name, ModelEndpoint) pairs, discarding endpoints with empty or
// placeholder API keys per spec.md §4.4's parsing rules.
func ParseEntries(entries []RawEntry) []struct {
	ModelName string
	Endpoint  domain.ModelEndpoint
	Provider  string
} {
	var out []struct {
		ModelName string
		Endpoint  domain.ModelEndpoint
		Provider  string
	}

	for _, entry := range entries {
		raws := entry.Endpoints
		if entry.Flat != nil {
			raws = append(raws, *entry.Flat)
		}

		modelName := entry.ModelName
		if modelName == "" && len(raws) > 0 {
			if host := hostOf(raws[0].BaseURL); host != "" {
				modelName = host
			} else {
				modelName = entry.Provider + "-default"
			}
		}
		if modelName == "" {
			modelName = entry.SourceName
		}

		for i, r := range raws {
			if isPlaceholderKey(r.APIKey) {
				continue
			}
			enabled := true
			if r.Enabled != nil {
				enabled = *r.Enabled
			}
			if !enabled {
				continue
			}
			id := r.ID
			if id == "" {
				id = entry.SourceName + "-" + strconv.Itoa(i)
			}
			ep := domain.ModelEndpoint{
				ID:          id,
				APIKey:      r.APIKey,
				BaseURL:     r.BaseURL,
				Priority:    r.Priority,
				Enabled:     true,
				Temperature: r.Temperature,
				VerifySSL:   r.VerifySSL,
				SourceName:  entry.SourceName,
			}
			out = append(out, struct {
				ModelName string
				Endpoint  domain.ModelEndpoint
				Provider  string
			}{ModelName: modelName, Endpoint: ep, Provider: entry.Provider})
		}
	}

	return out
}

// Aggregate groups parsed (model_name, endpoint) pairs by model_name,
// merging endpoint lists (sorted by Priority descending) and truncating
// the result to MaxModels logical models.
func Aggregate(pairs []struct {
	ModelName string
	Endpoint  domain.ModelEndpoint
	Provider  string
}) []domain.ModelConfig {
	order := make([]string, 0)
	byName := make(map[string]*domain.ModelConfig)

	for _, p := range pairs {
		cfg, ok := byName[p.ModelName]
		if !ok {
			cfg = &domain.ModelConfig{Name: p.ModelName, Provider: p.Provider}
			byName[p.ModelName] = cfg
			order = append(order, p.ModelName)
		}
		cfg.Endpoints = append(cfg.Endpoints, p.Endpoint)
	}

	out := make([]domain.ModelConfig, 0, len(order))
	for _, name := range order {
		cfg := byName[name]
		sort.SliceStable(cfg.Endpoints, func(i, j int) bool {
			return cfg.Endpoints[i].Priority > cfg.Endpoints[j].Priority
		})
		out = append(out, *cfg)
	}

	if len(out) > MaxModels {
		out = out[:MaxModels]
	}
	return out
}

// Select filters configured models by name (case-insensitive), falling
// back to the full set when names is empty or matches nothing.
func Select(configs []domain.ModelConfig, names []string) []domain.ModelConfig {
	if len(names) == 0 {
		return configs
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(n)] = true
	}
	var out []domain.ModelConfig
	for _, c := range configs {
		if wanted[strings.ToLower(c.Name)] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return configs
	}
	return out
}

// defaultGeminiModel/defaultOpenAIModel name the concrete API model
// used for the primary single-endpoint entries when GEMINI_API_KEY /
// OPENAI_API_KEY are set without an accompanying model name override,
// matching clients/gemini and clients/openaicompat's own defaults.
const (
	defaultGeminiModel = "gemini-2.0-flash"
	defaultOpenAIModel = "gpt-4o-mini"
)

// BuildModelConfigs assembles the full logical-model set from a flat
// runtime config map: the primary Gemini and OpenAI-compatible
// single-endpoint entries (GEMINI_API_KEY/OPENAI_API_KEY[/_BASE_URL])
// plus EXTRA_AI_MODELS, parsed and aggregated the same way regardless
// of source. Missing or placeholder keys simply drop out during
// ParseEntries; this never errors on an empty configuration.
func BuildModelConfigs(cfg map[string]string) ([]domain.ModelConfig, error) {
	entries := []RawEntry{
		{
			SourceName: "gemini", Provider: "gemini", ModelName: defaultGeminiModel,
			Flat: &RawEndpoint{APIKey: cfg["GEMINI_API_KEY"]},
		},
		{
			SourceName: "openai", Provider: "openai-compatible", ModelName: defaultOpenAIModel,
			Flat: &RawEndpoint{APIKey: cfg["OPENAI_API_KEY"], BaseURL: cfg["OPENAI_BASE_URL"]},
		},
	}

	extra, err := UnmarshalExtraModels(cfg["EXTRA_AI_MODELS"])
	if err != nil {
		return nil, err
	}
	entries = append(entries, extra...)

	return Aggregate(ParseEntries(entries)), nil
}

// UnmarshalExtraModels parses the EXTRA_AI_MODELS config value (a JSON
// array of objects, §3 ConfigFieldSchema / §4.7 validation) into raw
// entries ready for ParseEntries.
func UnmarshalExtraModels(raw string) ([]RawEntry, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var items []struct {
		Provider  string `json:"provider"`
		Model     string `json:"model"`
		Name      string `json:"name"`
		Endpoints []struct {
			ID          string   `json:"id"`
			APIKey      string   `json:"api_key"`
			BaseURL     string   `json:"base_url"`
			Priority    int      `json:"priority"`
			Enabled     *bool    `json:"enabled"`
			Temperature *float64 `json:"temperature"`
			VerifySSL   *bool    `json:"verify_ssl"`
		} `json:"endpoints"`
		APIKey  string `json:"api_key"`
		BaseURL string `json:"base_url"`
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}

	entries := make([]RawEntry, 0, len(items))
	for _, it := range items {
		entry := RawEntry{SourceName: it.Name, Provider: it.Provider, ModelName: it.Model}
		if entry.SourceName == "" {
			entry.SourceName = it.Model
		}
		if len(it.Endpoints) > 0 {
			for _, e := range it.Endpoints {
				entry.Endpoints = append(entry.Endpoints, RawEndpoint{
					ID: e.ID, APIKey: e.APIKey, BaseURL: e.BaseURL, Priority: e.Priority,
					Enabled: e.Enabled, Temperature: e.Temperature, VerifySSL: e.VerifySSL,
				})
			}
		} else {
			entry.Flat = &RawEndpoint{APIKey: it.APIKey, BaseURL: it.BaseURL}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
