// Package service exposes the engine to a host application through JSON method calls.
// It holds one process-wide runtime, initialized by the SDK entry point.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/pkg/app"
	"github.com/dyike/StockMateGo/pkg/bridge"
)

var (
	mu         sync.RWMutex
	sdkRuntime *app.Runtime
)

var ErrNotInitialized = errors.New("sdk is not initialized")

// Initialize loads config.json under workDir (seeding defaults rooted there), merges cfgJSON
// over it and builds the engine. Calling it again replaces the previous runtime.
func Initialize(workDir, cfgJSON string) error {
	mu.Lock()
	defer mu.Unlock()

	if sdkRuntime != nil {
		sdkRuntime.Close()
		sdkRuntime = nil
	}

	mgr, err := config.NewManager(
		config.WithConfigDir(workDir),
		config.WithInitialConfig(config.DefaultConfigWithRoot(workDir)),
	)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfgJSON) != "" {
		if err := mgr.UpdateFromJSON(cfgJSON); err != nil {
			return err
		}
	}

	rt, err := app.NewRuntime(mgr, app.WithNotifier(bridge.Notify))
	if err != nil {
		return err
	}
	sdkRuntime = rt
	return nil
}

// UpdateConfig merges jsonStr into the persisted config; the engine is rebuilt before it returns.
func UpdateConfig(jsonStr string) error {
	rt, err := current()
	if err != nil {
		return err
	}
	return rt.UpdateConfigJSON(jsonStr)
}

func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if sdkRuntime != nil {
		sdkRuntime.Close()
		sdkRuntime = nil
	}
}

func current() (*app.Runtime, error) {
	mu.RLock()
	defer mu.RUnlock()
	if sdkRuntime == nil {
		return nil, ErrNotInitialized
	}
	return sdkRuntime, nil
}

func engine() (*app.Engine, error) {
	rt, err := current()
	if err != nil {
		return nil, err
	}
	e := rt.Engine()
	if e == nil {
		return nil, errors.New("engine is not available")
	}
	return e, nil
}

func decodeParams(paramsJSON string, v any) error {
	if strings.TrimSpace(paramsJSON) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(paramsJSON), v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}
