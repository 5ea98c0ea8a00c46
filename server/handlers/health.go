package handlers

import (
	"encoding/json"
	"net/http"
)

// Health reports liveness. It carries no dependency state; a 200 means the
// process is up and serving.
func Health(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": version,
		})
	}
}
