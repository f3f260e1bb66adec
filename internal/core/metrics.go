package core

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// MetricsRegistry builds a registry from plugin collectors plus the Go
// runtime and process collectors. Plugins may hand out shared package-level
// collectors; a collector registered twice is kept once.
func MetricsRegistry(plugins []Plugin) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, plugin := range plugins {
		for _, collector := range plugin.Collectors() {
			if err := registry.Register(collector); err != nil {
				var already prometheus.AlreadyRegisteredError
				if errors.As(err, &already) {
					continue
				}
				return nil, fmt.Errorf("register %s metrics: %w", plugin.ID(), err)
			}
		}
	}
	return registry, nil
}
