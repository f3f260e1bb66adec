package plugins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joshp123/gohome-airthings/internal/config"
	"github.com/joshp123/gohome-airthings/internal/core"
)

// Factory builds a plugin from the loaded config. It reports false when the
// config does not enable the plugin.
type Factory func(*config.Config, zerolog.Logger) (core.Plugin, bool)

var (
	mu       sync.Mutex
	compiled = make(map[string]Factory)
)

// Register adds a compiled-in plugin factory. Registering an id twice panics.
func Register(id string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := compiled[id]; exists {
		panic(fmt.Sprintf("plugin %q registered twice", id))
	}
	compiled[id] = factory
}

// IDs lists the compiled-in plugin ids.
func IDs() []string {
	mu.Lock()
	defer mu.Unlock()
	ids := make([]string, 0, len(compiled))
	for id := range compiled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Compiled builds every plugin the config enables, in id order.
func Compiled(cfg *config.Config, logger zerolog.Logger) []core.Plugin {
	if cfg == nil {
		return nil
	}
	ids := IDs()

	mu.Lock()
	defer mu.Unlock()
	out := make([]core.Plugin, 0, len(ids))
	for _, id := range ids {
		plugin, ok := compiled[id](cfg, logger)
		if !ok {
			continue
		}
		out = append(out, plugin)
	}
	return out
}
