package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/configsvc"
	"github.com/stockpanel/sentinel/internal/errs"
)

// ConfigHandlers serves the runtime configuration protocol (spec.md
// §4.7 / §6): read, update (with optimistic concurrency and mask
// round-trip), validate-only, schema introspection, and live model
// discovery for the expert panel's provider configuration.
type ConfigHandlers struct {
	svc *configsvc.Service
	log zerolog.Logger
}

// NewConfigHandlers builds the system-config HTTP surface.
func NewConfigHandlers(svc *configsvc.Service, log zerolog.Logger) *ConfigHandlers {
	return &ConfigHandlers{svc: svc, log: log.With().Str("component", "config_handlers").Logger()}
}

// RegisterRoutes mounts this handler group under /system/config.
func (h *ConfigHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system/config", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Post("/validate", h.handleValidate)
		r.Get("/schema", h.handleSchema)
		r.Post("/fetch-models", h.handleFetchModels)
	})
}

func (h *ConfigHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	items, version, err := h.svc.GetConfig(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":          items,
		"config_version": version,
	})
}

type updateRequest struct {
	ConfigVersion string         `json:"config_version"`
	Items         []configsvc.KV `json:"items"`
	MaskToken     string         `json:"mask_token"`
	ReloadNow     bool           `json:"reload_now"`
}

func (h *ConfigHandlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, errs.Wrap(errs.KindValidation, "malformed request body", err))
		return
	}

	result, err := h.svc.Update(r.Context(), req.ConfigVersion, req.Items, req.MaskToken, req.ReloadNow)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type validateRequest struct {
	Items []configsvc.KV `json:"items"`
}

func (h *ConfigHandlers) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, errs.Wrap(errs.KindValidation, "malformed request body", err))
		return
	}

	issues, warnings := h.svc.Validate(req.Items)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    len(issues) == 0,
		"issues":   issues,
		"warnings": warnings,
	})
}

func (h *ConfigHandlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": h.svc.GetSchema()})
}

type fetchModelsRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
}

func (h *ConfigHandlers) handleFetchModels(w http.ResponseWriter, r *http.Request) {
	var req fetchModelsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, errs.Wrap(errs.KindValidation, "malformed request body", err))
		return
	}

	models, err := FetchAvailableModels(r.Context(), req.Provider, req.APIKey, req.BaseURL)
	if err != nil {
		writeError(w, h.log, errs.Wrap(errs.KindInternal, "fetching available models", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}
