package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"forge/apperr"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error onto the HTTP error envelope. Every
// failure carries its code so clients can tell retryable conditions from
// malformed input.
func WriteError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		WriteJSON(w, ae.Code.HTTPStatus(), map[string]string{
			"code":  string(ae.Code),
			"error": ae.Message,
		})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"code":  string(apperr.CodeInternal),
		"error": "internal error",
	})
}

// WriteErrorMsg writes an ad-hoc error with an explicit status and code.
func WriteErrorMsg(w http.ResponseWriter, status int, code apperr.Code, msg string) {
	WriteJSON(w, status, map[string]string{
		"code":  string(code),
		"error": msg,
	})
}
