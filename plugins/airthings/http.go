package airthings

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/joshp123/gohome-airthings/internal/core"
)

const (
	devicesEndpoint = "/airthings/devices"
	syncEndpoint    = "/airthings/sync"
)

var _ core.HTTPRegistrant = (*Plugin)(nil)

type devicesPayload struct {
	State    SyncState         `json:"state"`
	SyncedAt *time.Time        `json:"syncedAt,omitempty"`
	Devices  map[string]Device `json:"devices"`
}

func (p Plugin) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc(devicesEndpoint, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if p.poller == nil {
			http.Error(w, "airthings unavailable", http.StatusServiceUnavailable)
			return
		}
		devices, at, ok := p.poller.Latest()
		if !ok {
			http.Error(w, "no successful sync yet", http.StatusServiceUnavailable)
			return
		}
		if serial := r.URL.Query().Get("serial"); serial != "" {
			device, found := devices[serial]
			if !found {
				http.NotFound(w, r)
				return
			}
			p.writeJSON(w, device)
			return
		}
		p.writeJSON(w, devicesPayload{State: p.poller.State(), SyncedAt: &at, Devices: devices})
	})

	mux.HandleFunc(syncEndpoint, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if p.poller == nil {
			http.Error(w, "airthings unavailable", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()

		devices, err := p.poller.SyncNow(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		_, at, _ := p.poller.Latest()
		p.writeJSON(w, devicesPayload{State: p.poller.State(), SyncedAt: &at, Devices: devices})
	})
}

func (p Plugin) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		p.logger.Warn().Err(err).Msg("write airthings response")
	}
}
