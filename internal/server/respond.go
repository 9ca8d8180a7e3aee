package server

import (
	"encoding/json"
	"net/http"
)

// rejection is the body shape for requests the gateway refuses before
// any backend is involved.
type rejection struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// internalError is the uniform error-boundary body: a generic message
// plus the underlying detail.
type internalError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck // nothing left to do for the client
}

func respondTooManyRequests(w http.ResponseWriter) {
	writeJSON(w, http.StatusTooManyRequests, rejection{Message: "Too many requests"})
}

func respondUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, rejection{Message: "Unauthorized"})
}

func respondNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, rejection{Message: "Not found"})
}

func respondInternalError(w http.ResponseWriter, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, internalError{
		Message: "Internal server error",
		Error:   detail,
	})
}
