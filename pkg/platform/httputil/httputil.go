// Package httputil holds the JSON response helpers shared by every handler.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "github.com/CherreraTEG/OneSite/pkg/domain-errors"
)

// ErrorResponse is the error envelope written for every failed request.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into a status and envelope. Internal
// errors never leak their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	desc := ""
	var de *dErrors.Error
	if errors.As(err, &de) {
		code = de.Code
		desc = de.Message
	}
	if code == dErrors.CodeInternal {
		desc = ""
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), ErrorResponse{
		Error:            string(code),
		ErrorDescription: desc,
	})
}

// WriteErrorCode writes an envelope for a code that has no domain error behind it.
func WriteErrorCode(w http.ResponseWriter, status int, code, desc string) {
	WriteJSON(w, status, ErrorResponse{Error: code, ErrorDescription: desc})
}
