package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dyike/StockMateGo/config"
)

type EngineBuilder func(config.Config) (*Engine, error)

type Option func(*Runtime)

func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.builder = builder
		}
	}
}

func WithNotifier(fn func(topic, payload string)) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

// Runtime owns the current Engine and swaps in a rebuilt one whenever the config file changes.
type Runtime struct {
	cfgMgr *config.Manager
	engine atomic.Pointer[Engine]

	builder EngineBuilder
	notify  func(string, string)
	cancel  context.CancelFunc
}

func NewRuntime(cfgMgr *config.Manager, opts ...Option) (*Runtime, error) {
	if cfgMgr == nil {
		return nil, fmt.Errorf("config manager is required")
	}

	rt := &Runtime{
		cfgMgr:  cfgMgr,
		builder: BuildEngine,
	}

	for _, opt := range opts {
		opt(rt)
	}

	if err := rt.reload(cfgMgr.Effective()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	if err := cfgMgr.Watch(ctx, func(cfg config.Config) {
		if err := rt.reload(cfg); err != nil && rt.notify == nil {
			log.Error().Err(err).Msg("engine reload failed")
		}
	}); err != nil {
		cancel()
		rt.closeEngine(rt.engine.Load())
		return nil, err
	}

	return rt, nil
}

func (r *Runtime) Engine() *Engine {
	return r.engine.Load()
}

// Config is the effective config, environment overrides included.
func (r *Runtime) Config() config.Config {
	return r.cfgMgr.Effective()
}

func (r *Runtime) ConfigPath() string {
	return r.cfgMgr.Path()
}

func (r *Runtime) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.closeEngine(r.engine.Swap(nil))
}

func (r *Runtime) UpdateConfigJSON(jsonStr string) error {
	return r.cfgMgr.UpdateFromJSON(jsonStr)
}

func (r *Runtime) reload(cfg config.Config) error {
	engine, err := r.builder(cfg)
	if err != nil {
		r.notifyFailure(err)
		return err
	}
	r.closeEngine(r.engine.Swap(engine))
	r.notifySuccess(engine)
	return nil
}

func (r *Runtime) closeEngine(e *Engine) {
	if e == nil {
		return
	}
	if err := e.Close(); err != nil {
		log.Warn().Err(err).Uint64("version", e.Version).Msg("close engine")
	}
}

func (r *Runtime) notifySuccess(engine *Engine) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"version":  engine.Version,
		"built_at": engine.BuiltAt.UTC().Format(time.RFC3339),
	})
	r.notify("engine.reloaded", string(payload))
}

func (r *Runtime) notifyFailure(err error) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
	})
	r.notify("engine.reload_failed", string(payload))
}
