package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joshp123/gohome-airthings/plugins/airthings"
)

func airthingsCmd(ctx context.Context, conn *grpc.ClientConn, cmd string, args []string) {
	flags := flag.NewFlagSet(cmd, flag.ExitOnError)
	jsonOutput := flags.Bool("json", false, "Print JSON")
	_ = flags.Parse(args)
	out := outputMode{json: *jsonOutput}

	switch cmd {
	case "devices":
		resp, err := invoke(ctx, conn, airthings.ServiceName, "ListDevices", &emptypb.Empty{})
		if err != nil {
			fatal("airthings devices", err)
		}
		if out.json {
			out.printProto(resp)
			return
		}
		printDeviceList(out, resp)
	case "device":
		if flags.NArg() < 1 {
			fatal("airthings device", fmt.Errorf("missing serial number or name"))
		}
		serial, err := resolveSerial(ctx, conn, flags.Arg(0))
		if err != nil {
			fatal("airthings device", err)
		}
		resp, err := invoke(ctx, conn, airthings.ServiceName, "GetDevice", wrapperspb.String(serial))
		if err != nil {
			fatal("airthings device", err)
		}
		if out.json {
			out.printProto(resp)
			return
		}
		printDevice(out, resp)
	case "sync":
		resp, err := invoke(ctx, conn, airthings.ServiceName, "Sync", &emptypb.Empty{})
		if err != nil {
			fatal("airthings sync", err)
		}
		if out.json {
			out.printProto(resp)
			return
		}
		printDeviceList(out, resp)
	default:
		usage()
		os.Exit(2)
	}
}

// resolveSerial accepts a serial number or a device name.
func resolveSerial(ctx context.Context, conn *grpc.ClientConn, input string) (string, error) {
	resp, err := invoke(ctx, conn, airthings.ServiceName, "ListDevices", &emptypb.Empty{})
	if err != nil {
		return "", err
	}
	byName := make(map[string][]string)
	for _, value := range resp.GetFields()["devices"].GetListValue().GetValues() {
		fields := value.GetStructValue().GetFields()
		serial := fields["serialNumber"].GetStringValue()
		if serial == input {
			return serial, nil
		}
		if name := fields["name"].GetStringValue(); name != "" {
			byName[name] = append(byName[name], serial)
		}
	}

	// Devices sharing a name are only reachable as "name (serial)".
	options := make(map[string]string)
	for name, serials := range byName {
		if len(serials) == 1 {
			options[name] = serials[0]
			continue
		}
		for _, serial := range serials {
			options[fmt.Sprintf("%s (%s)", name, serial)] = serial
		}
	}
	return resolveNamedID("device", input, options)
}

func printDeviceList(out outputMode, resp *structpb.Struct) {
	fields := resp.GetFields()
	if at := fields["syncedAt"].GetStringValue(); at != "" {
		fmt.Printf("synced %s (%s)\n\n", at, fields["state"].GetStringValue())
	}
	devices := fields["devices"].GetListValue().GetValues()
	if len(devices) == 0 {
		fmt.Println("no devices")
		return
	}
	rows := [][]string{{"SERIAL", "NAME", "PRODUCT", "RECORDED", "SENSORS"}}
	for _, value := range devices {
		device := value.GetStructValue().GetFields()
		rows = append(rows, []string{
			device["serialNumber"].GetStringValue(),
			device["name"].GetStringValue(),
			device["productName"].GetStringValue(),
			device["recorded"].GetStringValue(),
			fmt.Sprintf("%d", len(device["sensors"].GetListValue().GetValues())),
		})
	}
	out.table(rows)
}

func printDevice(out outputMode, resp *structpb.Struct) {
	device := resp.GetFields()
	rows := [][]string{{"METRIC", "VALUE"}}
	addStringRow(&rows, "serial", device["serialNumber"].GetStringValue())
	addStringRow(&rows, "name", device["name"].GetStringValue())
	addStringRow(&rows, "product", device["productName"].GetStringValue())
	addStringRow(&rows, "home", device["home"].GetStringValue())
	addStringRow(&rows, "recorded", device["recorded"].GetStringValue())
	for _, value := range device["sensors"].GetListValue().GetValues() {
		sensor := value.GetStructValue().GetFields()
		addFloatRow(&rows, sensor["sensorType"].GetStringValue(), sensor["value"].GetNumberValue(), sensor["unit"].GetStringValue())
	}
	out.table(rows)
}

func addStringRow(rows *[][]string, label, value string) {
	if value == "" {
		return
	}
	*rows = append(*rows, []string{label, value})
}

func addFloatRow(rows *[][]string, label string, value float64, unit string) {
	formatted := fmt.Sprintf("%.2f", value)
	if unit != "" {
		formatted = fmt.Sprintf("%s %s", formatted, unit)
	}
	*rows = append(*rows, []string{label, formatted})
}
