package core

import (
	context "context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const RegistryServiceName = "gohome.registry.v1.Registry"

// RegistryServer lists the plugins compiled into this daemon.
type RegistryServer interface {
	ListPlugins(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	DescribePlugin(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// RegistryService provides plugin discovery to clients.
type RegistryService struct {
	plugins []Plugin
	mu      sync.RWMutex
}

func NewRegistryService(plugins []Plugin) *RegistryService {
	return &RegistryService{plugins: plugins}
}

func RegisterRegistryServer(server *grpc.Server, svc RegistryServer) {
	err := RegisterServiceDescriptor(RegistryServiceDesc.Metadata.(string), RegistryServiceName, []MethodSpec{
		{Name: "ListPlugins", Input: "google.protobuf.Empty", Output: "google.protobuf.Struct"},
		{Name: "DescribePlugin", Input: "google.protobuf.StringValue", Output: "google.protobuf.Struct"},
	})
	if err != nil {
		panic(err)
	}
	server.RegisterService(&RegistryServiceDesc, svc)
}

func (r *RegistryService) ListPlugins(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]any, 0, len(r.plugins))
	for _, p := range r.plugins {
		manifest := p.Manifest()
		summaries = append(summaries, map[string]any{
			"pluginId":    manifest.PluginID,
			"displayName": manifest.DisplayName,
			"version":     manifest.Version,
			"status":      string(p.Health()),
		})
	}

	resp, err := structpb.NewStruct(map[string]any{"plugins": summaries})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode plugins: %v", err)
	}
	return resp, nil
}

func (r *RegistryService) DescribePlugin(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		manifest := p.Manifest()
		if manifest.PluginID != req.GetValue() {
			continue
		}

		services := make([]any, 0, len(manifest.Services))
		for _, svc := range manifest.Services {
			services = append(services, svc)
		}
		dashboards := make([]any, 0, len(p.Dashboards()))
		for _, d := range p.Dashboards() {
			dashboards = append(dashboards, map[string]any{
				"name": d.Name,
				"path": DashboardPath(manifest.PluginID, d.Name),
			})
		}

		resp, err := structpb.NewStruct(map[string]any{
			"pluginId":      manifest.PluginID,
			"displayName":   manifest.DisplayName,
			"version":       manifest.Version,
			"services":      services,
			"agentsMd":      p.AgentsMD(),
			"status":        string(p.Health()),
			"healthMessage": p.HealthMessage(),
			"dashboards":    dashboards,
		})
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode plugin: %v", err)
		}
		return resp, nil
	}

	return nil, status.Errorf(codes.NotFound, "plugin %q not found", req.GetValue())
}

func _Registry_ListPlugins_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegistryServer).ListPlugins(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + RegistryServiceName + "/ListPlugins",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegistryServer).ListPlugins(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Registry_DescribePlugin_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegistryServer).DescribePlugin(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + RegistryServiceName + "/DescribePlugin",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegistryServer).DescribePlugin(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var RegistryServiceDesc = grpc.ServiceDesc{
	ServiceName: RegistryServiceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListPlugins", Handler: _Registry_ListPlugins_Handler},
		{MethodName: "DescribePlugin", Handler: _Registry_DescribePlugin_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "registry/v1/registry.proto",
}
