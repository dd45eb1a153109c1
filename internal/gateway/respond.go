package gateway

import (
	"encoding/json"
	"net/http"
)

// errorBody is the JSON error envelope returned to clients.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSONError writes a JSON error response with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message})
}
