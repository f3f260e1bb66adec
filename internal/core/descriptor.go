package core

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	// Well-known types must be in the global registry before files that
	// import them are built.
	_ "google.golang.org/protobuf/types/known/emptypb"
	_ "google.golang.org/protobuf/types/known/structpb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"
)

// MethodSpec is a unary method whose messages are well-known types, for
// example "google.protobuf.Empty".
type MethodSpec struct {
	Name   string
	Input  string
	Output string
}

var wellKnownFiles = map[string]string{
	"google.protobuf.Empty":       "google/protobuf/empty.proto",
	"google.protobuf.Struct":      "google/protobuf/struct.proto",
	"google.protobuf.StringValue": "google/protobuf/wrappers.proto",
}

// RegisterServiceDescriptor publishes a service descriptor in the global
// protobuf registry so server reflection can describe services declared
// without generated code. fullName is "package.Service". Registering the same
// path twice is a no-op.
func RegisterServiceDescriptor(path, fullName string, methods []MethodSpec) error {
	if _, err := protoregistry.GlobalFiles.FindFileByPath(path); err == nil {
		return nil
	}

	dot := strings.LastIndex(fullName, ".")
	if dot <= 0 {
		return fmt.Errorf("service name %q must include a package", fullName)
	}
	pkg, service := fullName[:dot], fullName[dot+1:]

	deps := make(map[string]bool)
	var depList []string
	addDep := func(msg string) error {
		file, ok := wellKnownFiles[msg]
		if !ok {
			return fmt.Errorf("unsupported message type %q", msg)
		}
		if !deps[file] {
			deps[file] = true
			depList = append(depList, file)
		}
		return nil
	}

	svc := &descriptorpb.ServiceDescriptorProto{Name: proto.String(service)}
	for _, m := range methods {
		if err := addDep(m.Input); err != nil {
			return err
		}
		if err := addDep(m.Output); err != nil {
			return err
		}
		svc.Method = append(svc.Method, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.Name),
			InputType:  proto.String("." + m.Input),
			OutputType: proto.String("." + m.Output),
		})
	}

	fd := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(path),
		Package:    proto.String(pkg),
		Dependency: depList,
		Service:    []*descriptorpb.ServiceDescriptorProto{svc},
		Syntax:     proto.String("proto3"),
	}
	file, err := protodesc.NewFile(fd, protoregistry.GlobalFiles)
	if err != nil {
		return fmt.Errorf("build descriptor %s: %w", path, err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(file); err != nil {
		return fmt.Errorf("register descriptor %s: %w", path, err)
	}
	return nil
}
