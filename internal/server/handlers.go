package server

import (
	"encoding/json"
	"net/http"

	"github.com/joshp123/gohome-airthings/internal/core"
)

// HealthHandler returns OK for liveness checks, or 503 with per-plugin detail
// when a plugin failed to initialize.
func HealthHandler(plugins []core.Plugin) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type pluginHealth struct {
			Status  core.HealthStatus `json:"status"`
			Message string            `json:"message,omitempty"`
		}
		report := make(map[string]pluginHealth, len(plugins))
		code := http.StatusOK
		for _, p := range plugins {
			status := p.Health()
			if status == core.HealthError {
				code = http.StatusServiceUnavailable
			}
			report[p.ID()] = pluginHealth{Status: status, Message: p.HealthMessage()}
		}

		if code == http.StatusOK && len(report) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}
