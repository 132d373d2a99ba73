package httpapi

import (
	"encoding/json"
	"net/http"
)

// envelope is the uniform response shape for every endpoint: success
// flag, payload, error detail, and optional pagination/count metadata.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	writeJSONMeta(w, status, data, nil)
}

func writeJSONMeta(w http.ResponseWriter, status int, data, meta any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: meta})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Code: code, Message: message}})
}
