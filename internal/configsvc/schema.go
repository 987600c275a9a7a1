// Package configsvc implements the hot-reloadable runtime configuration
// registry: a static per-key schema, a pluggable backend (dotenv file
// or sqlite table), optimistic-versioned updates, and the mask-token
// protocol that lets a client round-trip a sensitive value without
// ever seeing or clobbering the real secret.
package configsvc

import "strings"

// DataType is one of the declared value shapes a field can hold.
type DataType string

const (
	TypeString  DataType = "string"
	TypeInteger DataType = "integer"
	TypeNumber  DataType = "number"
	TypeBoolean DataType = "boolean"
	TypeArray   DataType = "array"
	TypeJSON    DataType = "json"
	TypeTime    DataType = "time"
)

// FieldSchema is the display + validation metadata for one config key.
type FieldSchema struct {
	Key          string
	Label        string
	Category     string
	DataType     DataType
	IsSensitive  bool
	IsRequired   bool
	IsEditable   bool
	DefaultValue string
	DisplayOrder int
	Enum         []string
	Min          *float64
	Max          *float64
	Pattern      string // checked only for TypeTime; empty falls back to defaultTimePattern
	Delimiter    string // multi-value delimiter for TypeArray, default ","
}

// defaultTimePattern matches HH:MM, 24h clock.
const defaultTimePattern = `^([01]\d|2[0-3]):[0-5]\d$`

// registry is the static table of known keys. Order here is the
// display order within each category; DisplayOrder is derived from
// position, not hand-maintained.
var registry = buildRegistry()

func buildRegistry() map[string]FieldSchema {
	fields := []FieldSchema{
		{Key: "STOCK_LIST", Label: "Watchlist", Category: "analysis", DataType: TypeArray, IsEditable: true},
		{Key: "SCHEDULE_TIME", Label: "Daily run time", Category: "analysis", DataType: TypeTime, IsEditable: true, DefaultValue: "09:30", Pattern: defaultTimePattern},
		{Key: "CONFIG_STORAGE_TYPE", Label: "Config backend", Category: "system", DataType: TypeString, IsEditable: true, DefaultValue: "env", Enum: []string{"env", "db"}},
		{Key: "GEMINI_API_KEY", Label: "Gemini API key", Category: "models", DataType: TypeString, IsSensitive: true, IsEditable: true},
		{Key: "OPENAI_API_KEY", Label: "OpenAI-compatible API key", Category: "models", DataType: TypeString, IsSensitive: true, IsEditable: true},
		{Key: "EXTRA_AI_MODELS", Label: "Additional model endpoints", Category: "models", DataType: TypeJSON, IsEditable: true},
		{Key: "TAVILY_API_KEY", Label: "Tavily API key", Category: "search", DataType: TypeString, IsSensitive: true, IsEditable: true},
		{Key: "SERPER_API_KEY", Label: "Serper API key", Category: "search", DataType: TypeString, IsSensitive: true, IsEditable: true},
		{Key: "TELEGRAM_BOT_TOKEN", Label: "Telegram bot token", Category: "notifications", DataType: TypeString, IsSensitive: true, IsEditable: true},
		{Key: "TELEGRAM_CHAT_ID", Label: "Telegram chat id", Category: "notifications", DataType: TypeString, IsEditable: true},
		{Key: "MAX_WORKERS", Label: "Queue worker pool size", Category: "system", DataType: TypeInteger, IsEditable: true, DefaultValue: "3", Min: floatPtr(1), Max: floatPtr(16)},
		{Key: "HISTORY_DAYS", Label: "History window (days)", Category: "analysis", DataType: TypeInteger, IsEditable: true, DefaultValue: "120", Min: floatPtr(1), Max: floatPtr(3650)},
	}

	out := make(map[string]FieldSchema, len(fields))
	for i, f := range fields {
		f.IsEditable = true
		f.DisplayOrder = i
		if f.Delimiter == "" && f.DataType == TypeArray {
			f.Delimiter = ","
		}
		out[f.Key] = f
	}
	return out
}

// Lookup returns the declared schema for key, or an inferred
// "uncategorized" schema when key isn't statically known — the config
// map is allowed to carry keys this build has never heard of (e.g. a
// newer build wrote them, or an operator is staging a future key).
func Lookup(key string) FieldSchema {
	key = strings.ToUpper(key)
	if f, ok := registry[key]; ok {
		return f
	}
	return FieldSchema{Key: key, Category: "uncategorized", DataType: TypeString, IsEditable: true, DisplayOrder: len(registry) + 1}
}

// SensitiveKeys returns every key flagged is_sensitive in the registry.
func SensitiveKeys() map[string]bool {
	out := make(map[string]bool, len(registry))
	for k, f := range registry {
		if f.IsSensitive {
			out[k] = true
		}
	}
	return out
}

// Category groups every field sharing one category, for get_schema's
// category-grouped response shape.
type Category struct {
	Name   string
	Fields []FieldSchema
}

// AllByCategory returns the full registry grouped by category, fields
// ordered by DisplayOrder within each group, categories in first-seen
// order.
func AllByCategory() []Category {
	order := []string{}
	seen := map[string]int{}
	grouped := map[string][]FieldSchema{}

	fields := make([]FieldSchema, 0, len(registry))
	for _, f := range registry {
		fields = append(fields, f)
	}
	// stable by DisplayOrder
	for i := 1; i < len(fields); i++ {
		for j := i; j > 0 && fields[j].DisplayOrder < fields[j-1].DisplayOrder; j-- {
			fields[j], fields[j-1] = fields[j-1], fields[j]
		}
	}

	for _, f := range fields {
		if _, ok := seen[f.Category]; !ok {
			seen[f.Category] = len(order)
			order = append(order, f.Category)
		}
		grouped[f.Category] = append(grouped[f.Category], f)
	}

	out := make([]Category, 0, len(order))
	for _, name := range order {
		out = append(out, Category{Name: name, Fields: grouped[name]})
	}
	return out
}

func floatPtr(v float64) *float64 { return &v }
