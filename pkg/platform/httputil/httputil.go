// Package httputil holds the JSON response writers shared by every handler.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "campuscard/pkg/domain-errors"
)

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeInvalidInput: http.StatusUnprocessableEntity,
	dErrors.CodeStorage:      http.StatusServiceUnavailable,
	dErrors.CodeInvalidToken: http.StatusForbidden,
	dErrors.CodeRevoked:      http.StatusGone,
	dErrors.CodeExpired:      http.StatusGone,
	dErrors.CodeUnavailable:  http.StatusServiceUnavailable,
	dErrors.CodeNotFound:     http.StatusNotFound,
	dErrors.CodeBadRequest:   http.StatusBadRequest,
	dErrors.CodeForbidden:    http.StatusForbidden,
	dErrors.CodeInternal:     http.StatusInternalServerError,
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusOf returns the HTTP status a domain error maps to.
func StatusOf(err error) int {
	status, ok := statusByCode[dErrors.CodeOf(err)]
	if !ok {
		return http.StatusInternalServerError
	}
	return status
}

// WriteError maps a domain error to its HTTP status and writes the standard
// error envelope. Internal errors omit the description so backend details
// never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusOf(err)

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) && de.Description != "" {
			body["error_description"] = de.Description
		}
	}
	WriteJSON(w, status, body)
}
