package airthings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/gohome-airthings/internal/core"
	"github.com/joshp123/gohome-airthings/internal/oauth"
	"github.com/joshp123/gohome-airthings/internal/rate"
)

const ServiceName = "airthings.v1.AirthingsService"

// AirthingsServiceServer is the gRPC surface over the latest sync result.
type AirthingsServiceServer interface {
	ListDevices(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetDevice(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Sync(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// Syncable is what the service needs from the poller.
type Syncable interface {
	Snapshotter
	State() SyncState
	SyncNow(ctx context.Context) (map[string]Device, error)
}

type service struct {
	source Syncable
}

func RegisterAirthingsService(server *grpc.Server, source Syncable) {
	err := core.RegisterServiceDescriptor(AirthingsServiceDesc.Metadata.(string), ServiceName, []core.MethodSpec{
		{Name: "ListDevices", Input: "google.protobuf.Empty", Output: "google.protobuf.Struct"},
		{Name: "GetDevice", Input: "google.protobuf.StringValue", Output: "google.protobuf.Struct"},
		{Name: "Sync", Input: "google.protobuf.Empty", Output: "google.protobuf.Struct"},
	})
	if err != nil {
		panic(err)
	}
	server.RegisterService(&AirthingsServiceDesc, &service{source: source})
}

func (s *service) ListDevices(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.source == nil {
		return nil, status.Error(codes.FailedPrecondition, "airthings client not configured")
	}
	devices, at, ok := s.source.Latest()
	if !ok {
		return nil, status.Errorf(codes.Unavailable, "no successful sync yet (state %s)", s.source.State())
	}
	return devicesStruct(devices, at, s.source.State())
}

func (s *service) GetDevice(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s.source == nil {
		return nil, status.Error(codes.FailedPrecondition, "airthings client not configured")
	}
	serial := strings.TrimSpace(req.GetValue())
	if serial == "" {
		return nil, status.Error(codes.InvalidArgument, "serial number is required")
	}
	devices, _, ok := s.source.Latest()
	if !ok {
		return nil, status.Errorf(codes.Unavailable, "no successful sync yet (state %s)", s.source.State())
	}
	device, found := devices[serial]
	if !found {
		return nil, status.Errorf(codes.NotFound, "device %s not found", serial)
	}
	return toStruct(device)
}

func (s *service) Sync(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.source == nil {
		return nil, status.Error(codes.FailedPrecondition, "airthings client not configured")
	}
	if _, err := s.source.SyncNow(ctx); err != nil {
		return nil, syncStatus(err)
	}
	devices, at, _ := s.source.Latest()
	return devicesStruct(devices, at, s.source.State())
}

// syncStatus maps pipeline errors onto gRPC codes.
func syncStatus(err error) error {
	var (
		apiErr    APIError
		statusErr UnexpectedStatusError
		limitErr  rate.RateLimitError
	)
	switch {
	case errors.Is(err, ErrCanceled):
		return status.Errorf(codes.Canceled, "sync: %v", err)
	case errors.Is(err, oauth.ErrAuthenticationFailed):
		return status.Errorf(codes.Unauthenticated, "sync: %v", err)
	case errors.As(err, &apiErr), errors.As(err, &limitErr):
		return status.Errorf(codes.ResourceExhausted, "sync: %v", err)
	case errors.As(err, &statusErr):
		return status.Errorf(codes.Unavailable, "sync: %v", err)
	default:
		return status.Errorf(codes.Internal, "sync: %v", err)
	}
}

func devicesStruct(devices map[string]Device, at time.Time, state SyncState) (*structpb.Struct, error) {
	serials := make([]string, 0, len(devices))
	for serial := range devices {
		serials = append(serials, serial)
	}
	sort.Strings(serials)

	list := make([]Device, 0, len(serials))
	for _, serial := range serials {
		list = append(list, devices[serial])
	}

	payload := struct {
		State    SyncState `json:"state"`
		SyncedAt string    `json:"syncedAt,omitempty"`
		Devices  []Device  `json:"devices"`
	}{State: state, Devices: list}
	if !at.IsZero() {
		payload.SyncedAt = at.UTC().Format(time.RFC3339)
	}
	return toStruct(payload)
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}

func _AirthingsService_ListDevices_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AirthingsServiceServer).ListDevices(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: fullMethod("ListDevices"),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AirthingsServiceServer).ListDevices(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _AirthingsService_GetDevice_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AirthingsServiceServer).GetDevice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: fullMethod("GetDevice"),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AirthingsServiceServer).GetDevice(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _AirthingsService_Sync_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AirthingsServiceServer).Sync(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: fullMethod("Sync"),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AirthingsServiceServer).Sync(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func fullMethod(name string) string {
	return fmt.Sprintf("/%s/%s", ServiceName, name)
}

// AirthingsServiceDesc is registered without generated stubs; requests and
// responses are well-known protobuf types.
var AirthingsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AirthingsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListDevices", Handler: _AirthingsService_ListDevices_Handler},
		{MethodName: "GetDevice", Handler: _AirthingsService_GetDevice_Handler},
		{MethodName: "Sync", Handler: _AirthingsService_Sync_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "airthings/v1/airthings.proto",
}
