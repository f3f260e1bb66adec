package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joshp123/gohome-airthings/internal/core"
)

type healthPlugin struct {
	id      string
	health  core.HealthStatus
	message string
}

func (p healthPlugin) ID() string { return p.id }
func (p healthPlugin) Manifest() core.Manifest {
	return core.Manifest{PluginID: p.id}
}
func (p healthPlugin) AgentsMD() string { return "" }
func (p healthPlugin) Dashboards() []core.Dashboard { return nil }
func (p healthPlugin) RegisterGRPC(*grpc.Server) {}
func (p healthPlugin) Collectors() []prometheus.Collector { return nil }
func (p healthPlugin) Health() core.HealthStatus { return p.health }
func (p healthPlugin) HealthMessage() string { return p.message }

func TestHealthHandlerNoPlugins(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestHealthHandlerReportsPlugins(t *testing.T) {
	plugins := []core.Plugin{
		healthPlugin{id: "airthings", health: core.HealthDegraded, message: "airthings api unexpected status 503"},
	}
	rec := httptest.NewRecorder()
	HealthHandler(plugins)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report map[string]struct {
		Status  core.HealthStatus `json:"status"`
		Message string            `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, core.HealthDegraded, report["airthings"].Status)
}

func TestHealthHandlerUnavailableOnError(t *testing.T) {
	plugins := []core.Plugin{healthPlugin{id: "airthings", health: core.HealthError, message: "credentials missing client_id"}}
	rec := httptest.NewRecorder()
	HealthHandler(plugins)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "credentials missing client_id")
}

func TestDashboardsHandler(t *testing.T) {
	handler := DashboardsHandler(map[string][]byte{"/dashboards/airthings/airthings-overview.json": []byte(`{"title":"Airthings"}`)})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboards/airthings/airthings-overview.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"title":"Airthings"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboards/other.json", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboards/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"dashboards":["/dashboards/airthings/airthings-overview.json"]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/dashboards/", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "airthings_snapshot_available", Help: "test"})
	gauge.Set(1)
	registry.MustRegister(gauge)

	rec := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "airthings_snapshot_available 1")
}

func TestLoggingInterceptorPassesThrough(t *testing.T) {
	interceptor := LoggingInterceptor(zerolog.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: "/airthings.v1.AirthingsService/Sync"}

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	_, err = interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.Unavailable, "no successful sync yet")
	})
	require.Equal(t, codes.Unavailable, status.Code(err))
}
