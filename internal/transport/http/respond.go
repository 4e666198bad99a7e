package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"e2ee-channels/pkg/apperrors"
)

type errorBody struct {
	Error       string   `json:"error"`
	Code        string   `json:"code"`
	MissingKeys []string `json:"missingKeys,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError

	// Only the constructor-supplied message leaves the process; a wrapped
	// cause stays in the logs.
	message := err.Error()
	var app *apperrors.AppError
	if errors.As(err, &app) {
		message = app.Message
	}

	switch code {
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeConflict:
		status = http.StatusConflict
	case apperrors.CodeForbidden:
		status = http.StatusForbidden
	case apperrors.CodeInvalidInput, apperrors.CodeCryptoFailure:
		status = http.StatusBadRequest
	default:
		// Internal causes stay in the logs, not in the response body.
		message = "internal error"
	}

	writeJSON(w, status, errorBody{
		Error:       message,
		Code:        string(code),
		MissingKeys: apperrors.MissingFrom(err),
	})
}
