package router

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/test/bufconn"

	"github.com/joshp123/gohome-airthings/internal/core"
	"github.com/joshp123/gohome-airthings/plugins/airthings"
)

type staticAPI struct{}

func (staticAPI) EnsureToken(context.Context) error { return nil }
func (staticAPI) Accounts(context.Context) ([]string, error) { return nil, nil }
func (staticAPI) Devices(context.Context, string) ([]airthings.DeviceRecord, error) {
	return nil, nil
}
func (staticAPI) AllSensors(context.Context, string, int) ([]airthings.SensorsRecord, error) {
	return nil, nil
}

func newPlugins() []core.Plugin {
	syncer := airthings.NewSyncer(staticAPI{}, airthings.SyncOptions{}, zerolog.Nop())
	poller := airthings.NewPoller(syncer, 0, zerolog.Nop())
	return []core.Plugin{airthings.NewPluginWithPoller(poller, zerolog.Nop())}
}

func TestRegisterPluginsExposesReflection(t *testing.T) {
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	reflection.Register(server)
	RegisterPlugins(server, newPlugins())
	go func() { _ = server.Serve(listener) }()
	defer server.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	client := grpcreflect.NewClientAuto(ctx, conn)
	defer client.Reset()

	services, err := client.ListServices()
	require.NoError(t, err)
	require.Contains(t, services, core.RegistryServiceName)
	require.Contains(t, services, airthings.ServiceName)

	desc, err := client.ResolveService(airthings.ServiceName)
	require.NoError(t, err)
	require.NotNil(t, desc.FindMethodByName("ListDevices"))
	require.NotNil(t, desc.FindMethodByName("GetDevice"))
	require.NotNil(t, desc.FindMethodByName("Sync"))
}

func TestRegisterHTTPMountsPluginRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHTTP(mux, newPlugins())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/airthings/sync", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"state":"SYNCED"`)
}
