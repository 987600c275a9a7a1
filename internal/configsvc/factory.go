package configsvc

import (
	"strings"

	"github.com/stockpanel/sentinel/internal/database"
)

// BackendConfig selects and parameterizes the process-wide backend.
type BackendConfig struct {
	StorageType string // "env" (default) or "db"
	FilePath    string // dotenv path, used when StorageType != "db"
	DB          *database.DB // sqlite handle, used when StorageType == "db"
}

// NewBackend selects a Backend per cfg.StorageType, mirroring the
// original get_config_backend()'s CONFIG_STORAGE_TYPE switch.
func NewBackend(cfg BackendConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageType)) {
	case "db":
		return NewDbBackend(cfg.DB)
	default:
		return NewFileBackend(cfg.FilePath), nil
	}
}
