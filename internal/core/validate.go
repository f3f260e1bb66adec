package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var pluginIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]+$`)

// ValidatePlugins checks the plugin contract at startup: ids are unique and
// match the manifest, services are fully qualified, and dashboards are named
// JSON documents.
func ValidatePlugins(plugins []Plugin) error {
	seen := make(map[string]bool)
	for _, plugin := range plugins {
		id := plugin.ID()
		manifest := plugin.Manifest()
		if id == "" {
			return fmt.Errorf("plugin id is empty")
		}
		if !pluginIDPattern.MatchString(id) {
			return fmt.Errorf("plugin id %q does not match %s", id, pluginIDPattern.String())
		}
		if manifest.PluginID != id {
			return fmt.Errorf("plugin id mismatch: id=%q manifest=%q", id, manifest.PluginID)
		}
		if seen[id] {
			return fmt.Errorf("duplicate plugin id: %s", id)
		}
		seen[id] = true

		for _, service := range manifest.Services {
			if !strings.Contains(service, ".") {
				return fmt.Errorf("plugin %s: service %q is not fully qualified", id, service)
			}
		}

		dashboards := make(map[string]bool)
		for _, dash := range plugin.Dashboards() {
			if dash.Name == "" {
				return fmt.Errorf("plugin %s: dashboard without name", id)
			}
			if dashboards[dash.Name] {
				return fmt.Errorf("plugin %s: duplicate dashboard %s", id, dash.Name)
			}
			dashboards[dash.Name] = true
			if !json.Valid(dash.JSON) {
				return fmt.Errorf("plugin %s: dashboard %s is not valid JSON", id, dash.Name)
			}
		}
	}
	return nil
}
