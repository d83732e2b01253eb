package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gideonlabs/gideon/internal/gideonerrors"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// writeError maps the error's category onto an HTTP status and emits the
// browser-facing {"error": ...} shape.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, gideonerrors.HTTPStatus(err), map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}
