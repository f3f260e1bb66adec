package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/gohome-airthings/internal/config"
	"github.com/joshp123/gohome-airthings/internal/core"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	addr := resolveAddr()
	timeout := 10 * time.Second
	if os.Args[1] == "sync" {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		fatal("dial", err)
	}
	defer conn.Close()

	switch os.Args[1] {
	case "plugins":
		pluginsCmd(ctx, conn, os.Args[2:])
	case "devices", "device", "sync":
		airthingsCmd(ctx, conn, os.Args[1], os.Args[2:])
	case "services":
		servicesCmd(ctx, conn)
	case "methods":
		methodsCmd(ctx, conn, os.Args[2:])
	case "call":
		callCmd(ctx, conn, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func invoke(ctx context.Context, conn *grpc.ClientConn, service, method string, in any) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, "/"+service+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func pluginsCmd(ctx context.Context, conn *grpc.ClientConn, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "list":
		resp, err := invoke(ctx, conn, core.RegistryServiceName, "ListPlugins", &emptypb.Empty{})
		if err != nil {
			fatal("list plugins", err)
		}
		for _, value := range resp.GetFields()["plugins"].GetListValue().GetValues() {
			plugin := value.GetStructValue().GetFields()
			fmt.Printf("%s\t%s\t%s\t%s\n",
				plugin["pluginId"].GetStringValue(),
				plugin["displayName"].GetStringValue(),
				plugin["version"].GetStringValue(),
				plugin["status"].GetStringValue())
		}
	case "describe":
		if len(args) < 2 {
			fatal("describe", fmt.Errorf("missing plugin id"))
		}
		resp, err := invoke(ctx, conn, core.RegistryServiceName, "DescribePlugin", wrapperspb.String(args[1]))
		if err != nil {
			fatal("describe plugin", err)
		}
		plugin := resp.GetFields()
		fmt.Printf("id: %s\n", plugin["pluginId"].GetStringValue())
		fmt.Printf("name: %s\n", plugin["displayName"].GetStringValue())
		fmt.Printf("version: %s\n", plugin["version"].GetStringValue())
		fmt.Printf("status: %s\n", plugin["status"].GetStringValue())
		if msg := plugin["healthMessage"].GetStringValue(); msg != "" {
			fmt.Printf("health: %s\n", msg)
		}
		fmt.Println("services:")
		for _, svc := range plugin["services"].GetListValue().GetValues() {
			fmt.Printf("  - %s\n", svc.GetStringValue())
		}
		fmt.Println("dashboards:")
		for _, dash := range plugin["dashboards"].GetListValue().GetValues() {
			fields := dash.GetStructValue().GetFields()
			fmt.Printf("  - %s (%s)\n", fields["name"].GetStringValue(), fields["path"].GetStringValue())
		}
		fmt.Println("agents_md:")
		fmt.Println(plugin["agentsMd"].GetStringValue())
	default:
		usage()
		os.Exit(2)
	}
}

func servicesCmd(ctx context.Context, conn *grpc.ClientConn) {
	descSource := reflectionSource(ctx, conn)
	services, err := grpcurl.ListServices(descSource)
	if err != nil {
		fatal("list services", err)
	}

	for _, service := range services {
		fmt.Println(service)
	}
}

func methodsCmd(ctx context.Context, conn *grpc.ClientConn, args []string) {
	if len(args) < 1 {
		fatal("methods", fmt.Errorf("missing service name"))
	}

	descSource := reflectionSource(ctx, conn)
	methods, err := grpcurl.ListMethods(descSource, args[0])
	if err != nil {
		fatal("list methods", err)
	}

	for _, method := range methods {
		fmt.Println(method)
	}
}

func callCmd(ctx context.Context, conn *grpc.ClientConn, args []string) {
	flags := flag.NewFlagSet("call", flag.ExitOnError)
	data := flags.String("data", "", "JSON request body")
	_ = flags.Parse(args)
	remaining := flags.Args()
	if len(remaining) < 1 {
		fatal("call", fmt.Errorf("missing method (service/method)"))
	}

	method := remaining[0]
	descSource := reflectionSource(ctx, conn)

	var reader io.Reader
	if *data != "" {
		reader = strings.NewReader(*data)
	} else if isStdinTerminal() {
		reader = strings.NewReader("{}")
	} else {
		reader = os.Stdin
	}

	parser, formatter, err := grpcurl.RequestParserAndFormatter(grpcurl.FormatJSON, descSource, reader, grpcurl.FormatOptions{})
	if err != nil {
		fatal("parse request", err)
	}

	handler := grpcurl.NewDefaultEventHandler(os.Stdout, descSource, formatter, false)
	if err := grpcurl.InvokeRPC(ctx, descSource, conn, method, nil, handler, parser.Next); err != nil {
		fatal("invoke", err)
	}
}

func reflectionSource(ctx context.Context, conn *grpc.ClientConn) grpcurl.DescriptorSource {
	client := grpcreflect.NewClientAuto(ctx, conn)
	return grpcurl.DescriptorSourceFromServer(ctx, client)
}

func isStdinTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func resolveAddr() string {
	if value := os.Getenv("AIRTHINGS_GRPC_ADDR"); value != "" {
		return value
	}
	for _, path := range configSearchPaths() {
		if addr := addrFromConfig(path); addr != "" {
			return addr
		}
	}
	return "localhost:9000"
}

func configSearchPaths() []string {
	paths := []string{config.PathFromEnv("")}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "airthings", "config.yaml"))
	}
	return paths
}

func addrFromConfig(path string) string {
	cfg, err := config.Load(path)
	if err != nil || cfg == nil {
		return ""
	}
	return cfg.Core.GRPCAddr
}

func usage() {
	fmt.Println("airthings-cli <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  devices [--json]")
	fmt.Println("  device <serial|name> [--json]")
	fmt.Println("  sync [--json]")
	fmt.Println("  plugins list")
	fmt.Println("  plugins describe <plugin_id>")
	fmt.Println("  services")
	fmt.Println("  methods <service>")
	fmt.Println("  call <service/method> --data '{}' (or pipe JSON via stdin)")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
