// Package handlers provides HTTP handlers for the adherence API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/medtrack/adherence-engine/internal/fault"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeFault maps domain fault kinds onto HTTP statuses. Partial writes
// surface the failed stage so operators can locate the orphaned rows.
func writeFault(w http.ResponseWriter, err error) {
	switch fault.KindOf(err) {
	case fault.KindValidation:
		writeError(w, err.Error(), http.StatusBadRequest)
	case fault.KindAuthorization:
		writeError(w, err.Error(), http.StatusForbidden)
	case fault.KindNotFound:
		writeError(w, err.Error(), http.StatusNotFound)
	case fault.KindGenerationExhausted:
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	case fault.KindPartialWrite:
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
			"stage": string(fault.StageOf(err)),
		})
	default:
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}
