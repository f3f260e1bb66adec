package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/joshp123/gohome-airthings/internal/config"
	"github.com/joshp123/gohome-airthings/internal/core"
	"github.com/joshp123/gohome-airthings/internal/plugins"
	"github.com/joshp123/gohome-airthings/internal/router"
	"github.com/joshp123/gohome-airthings/internal/server"
	"github.com/joshp123/gohome-airthings/plugins/airthings"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("ignoring .env")
	}

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	flags := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := flags.String("config", config.PathFromEnv(""), "Path to config file")
	_ = flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log_level")
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		serve(ctx, cfg)
	case "sync":
		syncOnce(ctx, cfg)
	default:
		usage()
		os.Exit(2)
	}
}

func activePlugins(cfg *config.Config) []core.Plugin {
	compiled := plugins.Compiled(cfg, log.Logger)
	enabled := config.EnabledPlugins(cfg)
	if err := core.ValidateEnabledPlugins(compiled, enabled, false); err != nil {
		log.Fatal().Err(err).Msg("plugin config")
	}
	active := core.FilterPlugins(compiled, enabled, false)
	if err := core.ValidatePlugins(active); err != nil {
		log.Fatal().Err(err).Msg("plugin contract")
	}
	for _, p := range active {
		event := log.Info()
		if p.Health() == core.HealthError {
			event = log.Error()
		}
		event.Str("plugin", p.ID()).Str("health", string(p.Health())).Str("message", p.HealthMessage()).Msg("plugin loaded")
	}
	return active
}

func serve(ctx context.Context, cfg *config.Config) {
	active := activePlugins(cfg)

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Core.GRPCAddr).Msg("grpc listen")
	}
	router.RegisterPlugins(grpcServer.Server, active)

	metricsRegistry, err := core.MetricsRegistry(active)
	if err != nil {
		log.Fatal().Err(err).Msg("metrics registry")
	}
	metricsRegistry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "airthings_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))

	if err := core.WriteDashboards(cfg.Core.DashboardDir, active); err != nil {
		log.Warn().Err(err).Msg("write dashboards")
	}

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/health", server.HealthHandler(active))
	httpMux.Handle("/metrics", server.MetricsHandler(metricsRegistry))
	httpMux.Handle("/dashboards/", server.DashboardsHandler(core.DashboardsMap(active)))
	router.RegisterHTTP(httpMux, active)

	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, httpMux)

	core.StartPlugins(ctx, active)

	go func() {
		log.Info().Str("addr", cfg.Core.HTTPAddr).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("http serve")
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.Core.GRPCAddr).Msg("grpc listening")
		if err := grpcServer.Serve(); err != nil {
			log.Fatal().Err(err).Msg("grpc serve")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	grpcServer.Stop()
}

func syncOnce(ctx context.Context, cfg *config.Config) {
	active := activePlugins(cfg)
	for _, p := range active {
		plugin, ok := p.(airthings.Plugin)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		devices, err := plugin.SyncOnce(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("sync")
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(devices); err != nil {
			log.Fatal().Err(err).Msg("encode devices")
		}
		return
	}
	log.Fatal().Msg("airthings section missing from config")
}

func usage() {
	fmt.Println("airthingsd [serve|sync] [-config path]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  serve   run the poller with gRPC and HTTP endpoints (default)")
	fmt.Println("  sync    run one sync pass and print the devices as JSON")
}
