package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"floracore/internal/core"
	"floracore/pkg/domain"
)

type errorResponse struct {
	Error      string             `json:"error"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError translates service and store errors. Blocking rule
// violations become 422 with the violation list attached; reference
// lookups that failed inside a transaction become 404; anything else is
// reported as 422 because by this point the request itself was
// well-formed.
func writeServiceError(w http.ResponseWriter, err error) {
	var ruleErr domain.RuleViolationError
	if errors.As(err, &ruleErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      ruleErr.Error(),
			Violations: ruleErr.Result.Violations,
		})
		return
	}
	var notFound core.ErrNotFound
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusUnprocessableEntity, err.Error())
}
