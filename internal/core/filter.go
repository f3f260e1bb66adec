package core

import (
	"fmt"
	"sort"
	"strings"
)

// FilterPlugins keeps the compiled plugins that are enabled in config, or all
// of them when includeAll is set.
func FilterPlugins(compiled []Plugin, enabled map[string]bool, includeAll bool) []Plugin {
	if includeAll {
		return compiled
	}
	out := make([]Plugin, 0, len(compiled))
	for _, plugin := range compiled {
		if enabled[plugin.ID()] {
			out = append(out, plugin)
		}
	}
	return out
}

// ValidateEnabledPlugins fails when config enables a plugin this build does
// not contain.
func ValidateEnabledPlugins(compiled []Plugin, enabled map[string]bool, includeAll bool) error {
	if includeAll {
		return nil
	}
	known := make(map[string]bool, len(compiled))
	for _, plugin := range compiled {
		known[plugin.ID()] = true
	}
	var missing []string
	for id, on := range enabled {
		if on && !known[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("enabled plugins not compiled in: %s", strings.Join(missing, ", "))
	}
	return nil
}
