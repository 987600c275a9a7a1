package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a classified errs.Error onto its wire status per
// spec.md §7, folding Extra fields into the response body. Anything
// else is an unclassified internal error.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var qErr *errs.Error
	if errors.As(err, &qErr) {
		body := map[string]interface{}{
			"error":   string(qErr.Kind),
			"message": qErr.Message,
		}
		for k, v := range qErr.Extra {
			body[k] = v
		}
		writeJSON(w, statusForKind(qErr.Kind), body)
		return
	}

	log.Error().Err(err).Msg("unhandled error")
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   string(errs.KindInternal),
		"message": "internal error",
	})
}

func statusForKind(k errs.Kind) int {
	switch k {
	case errs.KindValidation, errs.KindValidationFailed:
		return http.StatusBadRequest
	case errs.KindUnsupportedPeriod, errs.KindUnsupportedMarket:
		return http.StatusUnprocessableEntity
	case errs.KindDuplicateTask, errs.KindVersionConflict:
		return http.StatusConflict
	case errs.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
