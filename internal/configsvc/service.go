package configsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/errs"
)

// UpdateResult is the outcome of one Update call, mirroring the
// original service's response shape field-for-field.
type UpdateResult struct {
	Success            bool     `json:"success"`
	NewConfigVersion   string   `json:"new_config_version"`
	AppliedCount       int      `json:"applied_count"`
	SkippedMaskedCount int      `json:"skipped_masked_count"`
	ReloadTriggered    bool     `json:"reload_triggered"`
	UpdatedKeys        []string `json:"updated_keys"`
	Warnings           []string `json:"warnings"`
}

// ReloadFunc re-reads the environment/runtime singletons after a
// committed update. Returning warnings (not errors) never fails the
// update itself.
type ReloadFunc func(ctx context.Context, cfg ConfigMap) []string

// Service is the schema + backend-agnostic configuration protocol.
type Service struct {
	mu      sync.Mutex
	backend Backend
	reload  ReloadFunc
	log     zerolog.Logger
}

// New builds a Service over backend. reload may be nil if the caller
// never requests reload_now.
func New(backend Backend, reload ReloadFunc, log zerolog.Logger) *Service {
	return &Service{backend: backend, reload: reload, log: log.With().Str("component", "config_service").Logger()}
}

// GetSchema returns the category-grouped field registry.
func (s *Service) GetSchema() []Category { return AllByCategory() }

// GetConfig returns the current items and version. It never masks —
// disclosure is the caller's concern.
func (s *Service) GetConfig(ctx context.Context) (ConfigMap, string, error) {
	items, err := s.backend.Read()
	if err != nil {
		return nil, "", err
	}
	version, err := s.backend.Version()
	if err != nil {
		return nil, "", err
	}
	return items, version, nil
}

// Validate runs every per-field and cross-field rule over items
// without writing anything. The second return value carries
// non-fatal deprecation warnings (e.g. string verify_ssl values).
func (s *Service) Validate(items []KV) ([]errs.ValidationIssue, []string) {
	byKey := make(map[string]string, len(items))
	for _, it := range items {
		byKey[strings.ToUpper(it.Key)] = it.Value
	}

	var issues []errs.ValidationIssue
	var warnings []string
	for _, it := range items {
		if i := validateField(it.Key, it.Value); i != nil {
			issues = append(issues, *i)
		}
		warnings = append(warnings, deprecationWarnings(it.Key, it.Value)...)
	}
	issues = append(issues, crossFieldIssues(byKey)...)
	return issues, warnings
}

// deprecationWarnings flags non-fatal, tolerated-but-discouraged field
// shapes. Currently only EXTRA_AI_MODELS endpoints with a string
// verify_ssl value (instead of a bool).
func deprecationWarnings(key, value string) []string {
	if !strings.EqualFold(key, "EXTRA_AI_MODELS") || strings.TrimSpace(value) == "" {
		return nil
	}
	var entries []extraModelEntry
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		return nil
	}
	var warnings []string
	for _, e := range entries {
		for _, ep := range e.Endpoints {
			if _, isBool := ep.VerifySSL.(bool); ep.VerifySSL != nil && !isBool {
				warnings = append(warnings, fmt.Sprintf(
					"%s: endpoint for %s/%s uses a string verify_ssl value, which is deprecated; use a boolean", key, e.Provider, e.Model))
			}
		}
	}
	return warnings
}

func validateField(key, value string) *errs.ValidationIssue {
	key = strings.ToUpper(key)
	schema := Lookup(key)

	if strings.ContainsAny(value, "\n\r") {
		return &errs.ValidationIssue{Key: key, Message: "value must not contain newlines"}
	}

	switch schema.DataType {
	case TypeInteger:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return &errs.ValidationIssue{Key: key, Message: "must be an integer"}
		}
		if schema.Min != nil && float64(n) < *schema.Min {
			return &errs.ValidationIssue{Key: key, Message: fmt.Sprintf("must be >= %v", *schema.Min)}
		}
		if schema.Max != nil && float64(n) > *schema.Max {
			return &errs.ValidationIssue{Key: key, Message: fmt.Sprintf("must be <= %v", *schema.Max)}
		}
	case TypeNumber:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &errs.ValidationIssue{Key: key, Message: "must be a number"}
		}
		if schema.Min != nil && n < *schema.Min {
			return &errs.ValidationIssue{Key: key, Message: fmt.Sprintf("must be >= %v", *schema.Min)}
		}
		if schema.Max != nil && n > *schema.Max {
			return &errs.ValidationIssue{Key: key, Message: fmt.Sprintf("must be <= %v", *schema.Max)}
		}
	case TypeBoolean:
		if _, err := strconv.ParseBool(strings.ToLower(value)); err != nil {
			return &errs.ValidationIssue{Key: key, Message: "must be true or false"}
		}
	case TypeTime:
		pattern := schema.Pattern
		if pattern == "" {
			pattern = defaultTimePattern
		}
		matched, err := regexp.MatchString(pattern, value)
		if err != nil || !matched {
			return &errs.ValidationIssue{Key: key, Message: "must match " + pattern}
		}
	case TypeJSON:
		if key == "EXTRA_AI_MODELS" {
			return validateExtraModels(key, value)
		}
	}

	if len(schema.Enum) > 0 {
		ok := false
		for _, e := range schema.Enum {
			if e == value {
				ok = true
				break
			}
		}
		if !ok {
			return &errs.ValidationIssue{Key: key, Message: "must be one of " + strings.Join(schema.Enum, ", ")}
		}
	}
	return nil
}

// extraModelEndpoint mirrors the wire shape of one EXTRA_AI_MODELS
// endpoint entry.
type extraModelEndpoint struct {
	APIKey      string      `json:"api_key"`
	Temperature *float64    `json:"temperature"`
	VerifySSL   interface{} `json:"verify_ssl"`
	Enabled     *bool       `json:"enabled"`
}

type extraModelEntry struct {
	Provider  string                `json:"provider"`
	Model     string                `json:"model"`
	Endpoints []extraModelEndpoint  `json:"endpoints"`
}

func validateExtraModels(key, value string) *errs.ValidationIssue {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var entries []extraModelEntry
	if err := json.Unmarshal([]byte(value), &entries); err != nil {
		return &errs.ValidationIssue{Key: key, Message: "must be a JSON array of model objects"}
	}
	for _, e := range entries {
		if e.Provider == "" || e.Model == "" {
			return &errs.ValidationIssue{Key: key, Message: "each model must declare provider and model"}
		}
		if len(e.Endpoints) == 0 {
			continue
		}
		anyEnabled := false
		for _, ep := range e.Endpoints {
			if ep.APIKey == "" {
				return &errs.ValidationIssue{Key: key, Message: "each endpoint must carry a non-empty api_key"}
			}
			if ep.Temperature != nil && (*ep.Temperature < 0 || *ep.Temperature > 2) {
				return &errs.ValidationIssue{Key: key, Message: "temperature must be in [0, 2]"}
			}
			if ep.Enabled == nil || *ep.Enabled {
				anyEnabled = true
			}
		}
		if !anyEnabled {
			return &errs.ValidationIssue{Key: key, Message: "model has all endpoints disabled"}
		}
	}
	return nil
}

func crossFieldIssues(byKey map[string]string) []errs.ValidationIssue {
	var issues []errs.ValidationIssue
	if token, ok := byKey["TELEGRAM_BOT_TOKEN"]; ok && token != "" {
		if chatID, ok := byKey["TELEGRAM_CHAT_ID"]; !ok || chatID == "" {
			issues = append(issues, errs.ValidationIssue{Key: "TELEGRAM_CHAT_ID", Message: "required when TELEGRAM_BOT_TOKEN is set"})
		}
	}
	return issues
}

// Update applies items under optimistic concurrency control, honoring
// the mask-token protocol for sensitive keys, and optionally triggers
// a runtime reload.
func (s *Service) Update(ctx context.Context, configVersion string, items []KV, maskToken string, reloadNow bool) (UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentVersion, err := s.backend.Version()
	if err != nil {
		return UpdateResult{}, err
	}
	if configVersion != currentVersion {
		return UpdateResult{}, errs.VersionConflict(currentVersion)
	}

	issues, deprecations := s.Validate(items)
	if len(issues) > 0 {
		return UpdateResult{}, errs.ValidationFailed(issues)
	}

	updatedKeys, skippedMasked, newVersion, err := s.backend.Apply(items, SensitiveKeys(), maskToken)
	if err != nil {
		return UpdateResult{}, err
	}

	result := UpdateResult{
		Success:            true,
		NewConfigVersion:   newVersion,
		AppliedCount:       len(updatedKeys),
		SkippedMaskedCount: len(skippedMasked),
		UpdatedKeys:        updatedKeys,
		Warnings:           deprecations,
	}

	if reloadNow && s.reload != nil {
		cfg, err := s.backend.Read()
		if err != nil {
			result.Warnings = append(result.Warnings, "reload failed to re-read config: "+err.Error())
		} else {
			result.Warnings = append(result.Warnings, s.reload(ctx, cfg)...)
			result.ReloadTriggered = true
		}
	}

	s.log.Info().Strs("updated_keys", updatedKeys).Int("skipped_masked", len(skippedMasked)).
		Bool("reload_triggered", result.ReloadTriggered).Msg("config updated")
	return result, nil
}

// UpdatedAt exposes the backend's last-write timestamp for status
// endpoints.
func (s *Service) UpdatedAt() (*time.Time, error) { return s.backend.UpdatedAt() }
