package airthings

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/joshp123/gohome-airthings/internal/config"
	"github.com/joshp123/gohome-airthings/internal/core"
	"github.com/joshp123/gohome-airthings/internal/oauth"
	"github.com/joshp123/gohome-airthings/internal/rate"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

// Plugin implements the plugin contract for Airthings cloud devices.
type Plugin struct {
	poller        *Poller
	publisher     *MQTTPublisher
	logger        zerolog.Logger
	health        core.HealthStatus
	healthMessage string
}

// NewPlugin constructs the Airthings plugin from the loaded config. It reports
// false when the airthings section is absent.
func NewPlugin(cfg *config.Config, logger zerolog.Logger) (Plugin, bool) {
	if cfg == nil || cfg.Airthings == nil {
		return Plugin{}, false
	}
	logger = logger.With().Str("plugin", "airthings").Logger()

	runtimeCfg, err := ConfigFromFile(cfg.Airthings)
	if err != nil {
		return Plugin{health: core.HealthError, healthMessage: err.Error(), logger: logger}, true
	}

	client, err := NewClient(runtimeCfg, logger)
	if err != nil {
		return Plugin{health: core.HealthError, healthMessage: err.Error(), logger: logger}, true
	}

	var (
		publishers []Publisher
		publisher  *MQTTPublisher
	)
	if cfg.MQTT != nil {
		pubCfg, err := publisherConfig(cfg.MQTT)
		if err == nil {
			publisher, err = NewMQTTPublisher(pubCfg, logger)
		}
		if err != nil {
			return Plugin{health: core.HealthError, healthMessage: err.Error(), logger: logger}, true
		}
		publishers = append(publishers, publisher)
	}

	syncer := NewSyncer(client, SyncOptions{
		MaxConcurrency:  runtimeCfg.MaxConcurrency,
		MaxPages:        runtimeCfg.MaxPages,
		AccountCacheTTL: runtimeCfg.AccountCacheTTL,
	}, logger)

	return Plugin{
		poller:    NewPoller(syncer, runtimeCfg.PollInterval, logger, publishers...),
		publisher: publisher,
		logger:    logger,
		health:    core.HealthHealthy,
	}, true
}

// NewPluginWithPoller wires a plugin around an existing poller.
func NewPluginWithPoller(poller *Poller, logger zerolog.Logger) Plugin {
	return Plugin{poller: poller, logger: logger, health: core.HealthHealthy}
}

func publisherConfig(cfg *config.MQTTConfig) (PublisherConfig, error) {
	out := PublisherConfig{
		Broker:      cfg.Broker,
		ClientID:    cfg.ClientID,
		Username:    cfg.Username,
		TopicPrefix: cfg.TopicPrefix,
	}
	if cfg.PasswordFile != "" {
		data, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return PublisherConfig{}, fmt.Errorf("read mqtt password: %w", err)
		}
		out.Password = strings.TrimSpace(string(data))
	}
	return out, nil
}

func (p Plugin) ID() string {
	return "airthings"
}

func (p Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "airthings",
		DisplayName: "Airthings",
		Version:     "0.1.0",
		Services:    []string{ServiceName},
	}
}

func (p Plugin) AgentsMD() string {
	return agentsMD
}

func (p Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "airthings-overview", JSON: dashboardJSON}}
}

func (p Plugin) RegisterGRPC(server *grpc.Server) {
	var source Syncable
	if p.poller != nil {
		source = p.poller
	}
	RegisterAirthingsService(server, source)
}

func (p Plugin) Collectors() []prometheus.Collector {
	if p.poller == nil {
		return nil
	}
	collectors := []prometheus.Collector{NewMetricsCollector(p.poller)}
	collectors = append(collectors, SyncCollectors()...)
	collectors = append(collectors, oauth.MetricsCollectors()...)
	collectors = append(collectors, rate.MetricsCollectors()...)
	return collectors
}

// Start begins polling. Publishing stops with ctx.
func (p Plugin) Start(ctx context.Context) {
	if p.poller == nil {
		return
	}
	p.poller.Start(ctx)
	if p.publisher != nil {
		go func() {
			<-ctx.Done()
			p.publisher.Close()
		}()
	}
}

// SyncOnce runs a single pass without starting the schedule.
func (p Plugin) SyncOnce(ctx context.Context) (map[string]Device, error) {
	if p.poller == nil {
		return nil, fmt.Errorf("airthings plugin unavailable: %s", p.healthMessage)
	}
	return p.poller.SyncNow(ctx)
}

func (p Plugin) Health() core.HealthStatus {
	if p.health != core.HealthHealthy || p.poller == nil {
		return p.health
	}
	if p.poller.LastError() != nil {
		return core.HealthDegraded
	}
	return core.HealthHealthy
}

func (p Plugin) HealthMessage() string {
	if p.healthMessage != "" || p.poller == nil {
		return p.healthMessage
	}
	if err := p.poller.LastError(); err != nil {
		return err.Error()
	}
	if _, at, ok := p.poller.Latest(); ok {
		return fmt.Sprintf("last sync %s", at.UTC().Format(time.RFC3339))
	}
	return string(p.poller.State())
}
