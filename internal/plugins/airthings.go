package plugins

import (
	"github.com/rs/zerolog"

	"github.com/joshp123/gohome-airthings/internal/config"
	"github.com/joshp123/gohome-airthings/internal/core"
	"github.com/joshp123/gohome-airthings/plugins/airthings"
)

func init() {
	Register("airthings", func(cfg *config.Config, logger zerolog.Logger) (core.Plugin, bool) {
		return airthings.NewPlugin(cfg, logger)
	})
}
