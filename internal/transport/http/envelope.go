package http

import (
	"encoding/json"
	"log"
	"net/http"
)

// All responses share one envelope: {success, data?, error?}. Logical success
// (including partial batch failures reported inside data) is HTTP 200.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

const (
	codeValidation   = "validation_error"
	codeUnauthorized = "unauthorized"
	codeNotFound     = "not_found"
	codeStorage      = "storage_error"
)

// fieldError is one field-level validation failure surfaced in error.details.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, envelope{
		Success: false,
		Error:   &errorBody{Code: code, Message: message, Details: details},
	})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}
