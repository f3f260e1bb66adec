package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// DashboardPath is the URL a plugin dashboard is served under.
func DashboardPath(pluginID, name string) string {
	return "/dashboards/" + pluginID + "/" + name + ".json"
}

// DashboardsMap indexes every plugin dashboard by its URL path.
func DashboardsMap(plugins []Plugin) map[string][]byte {
	result := make(map[string][]byte)
	for _, plugin := range plugins {
		id := plugin.Manifest().PluginID
		for _, dash := range plugin.Dashboards() {
			result[DashboardPath(id, dash.Name)] = dash.JSON
		}
	}
	return result
}

// WriteDashboards provisions dashboards for Grafana as dir/<plugin>/<name>.json.
// Existing files are replaced by rename.
func WriteDashboards(dir string, plugins []Plugin) error {
	if dir == "" {
		return nil
	}

	for _, plugin := range plugins {
		dashboards := plugin.Dashboards()
		if len(dashboards) == 0 {
			continue
		}
		pluginDir := filepath.Join(dir, plugin.Manifest().PluginID)
		if err := os.MkdirAll(pluginDir, 0o755); err != nil {
			return fmt.Errorf("create dashboard dir: %w", err)
		}
		for _, dash := range dashboards {
			path := filepath.Join(pluginDir, dash.Name+".json")
			tmp := path + ".tmp"
			if err := os.WriteFile(tmp, dash.JSON, 0o644); err != nil {
				return fmt.Errorf("write dashboard %s: %w", path, err)
			}
			if err := os.Rename(tmp, path); err != nil {
				_ = os.Remove(tmp)
				return fmt.Errorf("replace dashboard %s: %w", path, err)
			}
		}
	}
	return nil
}
