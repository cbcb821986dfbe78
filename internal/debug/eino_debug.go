// Package debug starts the eino devops server so the decision graph can be inspected visually.
package debug

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/devops"
	"github.com/rs/zerolog"

	"github.com/dyike/StockMateGo/config"
)

type EinoDebugger struct {
	enabled bool
	port    int
	logger  zerolog.Logger
}

func NewEinoDebugger(cfg config.Config, logger zerolog.Logger) *EinoDebugger {
	return &EinoDebugger{
		enabled: cfg.EinoDebugEnabled,
		port:    cfg.EinoDebugPort,
		logger:  logger.With().Str("component", "eino_debug").Logger(),
	}
}

// Initialize must run before the orchestrator graph is compiled, otherwise the graph is not registered.
func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.enabled {
		return nil
	}
	d.logger.Info().Int("port", d.port).Msg("initializing eino visual debug plugin")
	if err := devops.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize Eino debug plugin: %w", err)
	}
	d.logger.Info().Str("url", d.URL()).Msg("eino debug server ready")
	return nil
}

func (d *EinoDebugger) Enabled() bool {
	return d.enabled
}

func (d *EinoDebugger) URL() string {
	if !d.enabled {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.port)
}
