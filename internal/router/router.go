package router

import (
	"net/http"

	"google.golang.org/grpc"

	"github.com/joshp123/gohome-airthings/internal/core"
)

// RegisterPlugins registers plugin services and core services on the gRPC server.
func RegisterPlugins(server *grpc.Server, plugins []core.Plugin) {
	core.RegisterRegistryServer(server, core.NewRegistryService(plugins))

	for _, p := range plugins {
		p.RegisterGRPC(server)
	}
}

// RegisterHTTP mounts the HTTP handlers of plugins that expose any.
func RegisterHTTP(mux *http.ServeMux, plugins []core.Plugin) {
	for _, p := range plugins {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(mux)
		}
	}
}
