// Package httputil centralizes domain error translation to HTTP responses.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "skiptrace/pkg/domain-errors"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError maps a domain error onto an HTTP response. Internal errors get a
// generic body; messages are only surfaced for caller-visible codes.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}

	switch code {
	case dErrors.CodeBadRequest:
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.Description = de.Message
		}
	case dErrors.CodeInsufficientCredits:
		body.Description = "insufficient credits"
	case dErrors.CodeUnavailable, dErrors.CodeTimeout:
		body.Description = "service temporarily unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.HTTPStatus(code))
	_ = json.NewEncoder(w).Encode(body)
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
