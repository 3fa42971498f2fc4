// Package httpx holds the response helpers shared by all handlers.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/moltgrid/backend/internal/apperr"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a tagged error onto its HTTP status and emits the
// uniform {"error": ..., "kind": ...} body. Untagged errors become an
// opaque 500 so internals never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	body := map[string]string{"error": err.Error()}
	if kind := apperr.KindOf(err); kind != "" {
		body["kind"] = string(kind)
	} else {
		body["error"] = "internal error"
	}
	WriteJSON(w, status, body)
}
