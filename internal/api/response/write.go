package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes data as an uncacheable JSON body. Admin payloads carry
// participant records, so intermediaries must not store them.
func JSON(w http.ResponseWriter, status int, data any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}
