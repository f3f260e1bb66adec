package airthings

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/gohome-airthings/internal/core"
)

func newHTTPPlugin(api API) (Plugin, *http.ServeMux) {
	poller := NewPoller(NewSyncer(api, SyncOptions{}, zerolog.Nop()), 0, zerolog.Nop())
	plugin := NewPluginWithPoller(poller, zerolog.Nop())
	mux := http.NewServeMux()
	plugin.RegisterHTTP(mux)
	return plugin, mux
}

func serve(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHTTPDevicesBeforeSync(t *testing.T) {
	_, mux := newHTTPPlugin(twoDeviceAPI())

	rec := serve(mux, http.MethodGet, devicesEndpoint)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTTPSyncThenDevices(t *testing.T) {
	plugin, mux := newHTTPPlugin(twoDeviceAPI())

	rec := serve(mux, http.MethodGet, syncEndpoint)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(mux, http.MethodPost, syncEndpoint)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		State   SyncState         `json:"state"`
		Devices map[string]Device `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, StateSynced, payload.State)
	require.Len(t, payload.Devices, 2)

	rec = serve(mux, http.MethodGet, devicesEndpoint+"?serial=B")
	require.Equal(t, http.StatusOK, rec.Code)
	var device Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &device))
	require.Equal(t, "Office", device.Name)

	rec = serve(mux, http.MethodGet, devicesEndpoint+"?serial=nope")
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, core.HealthHealthy, plugin.Health())
	require.Contains(t, plugin.HealthMessage(), "last sync")
}

func TestHTTPSyncFailureDegradesHealth(t *testing.T) {
	api := twoDeviceAPI()
	api.accountsErr = UnexpectedStatusError{Status: 500, Body: "oops"}
	plugin, mux := newHTTPPlugin(api)

	rec := serve(mux, http.MethodPost, syncEndpoint)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, core.HealthDegraded, plugin.Health())
	require.Contains(t, plugin.HealthMessage(), "unexpected status 500")
}
