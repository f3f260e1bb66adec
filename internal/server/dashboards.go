package server

import (
	"encoding/json"
	"net/http"
	"sort"
)

// DashboardsHandler serves dashboard JSON by URL path. The bare /dashboards/
// path lists what is available.
func DashboardsHandler(dashboards map[string][]byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if r.URL.Path == "/dashboards/" {
			paths := make([]string, 0, len(dashboards))
			for path := range dashboards {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string][]string{"dashboards": paths})
			return
		}

		data, ok := dashboards[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}
