package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	require.NoError(t, err)

	path := filepath.Join(dir, "config.json")
	_, err = os.Stat(path)
	require.NoError(t, err, "config file not created")

	cfg := mgr.Get()
	assert.Equal(t, 0.35, cfg.Thresholds.Volatility)
	cfg.ProjectDir = filepath.Join(dir, "project")
	cfg.ResultsDir = filepath.Join(dir, "results")
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DataCacheDir = filepath.Join(dir, "cache")

	data, _ := json.Marshal(cfg)
	require.NoError(t, mgr.UpdateFromJSON(string(data)))

	updated := mgr.Get()
	assert.Equal(t, cfg.ProjectDir, updated.ProjectDir)
}

func TestManagerPartialUpdateKeepsOtherFields(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateFromJSON(`{"thresholds":{"volatility":0.5}}`))

	cfg := mgr.Get()
	assert.Equal(t, 0.5, cfg.Thresholds.Volatility)
	assert.Equal(t, 0.20, cfg.Thresholds.MaxDrawdown)
	assert.Equal(t, "local", cfg.Mode)
}

func TestManagerRejectsInvalidUpdate(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	require.NoError(t, err)

	err = mgr.UpdateFromJSON(`{"mode":"oracle"}`)
	require.Error(t, err)
	assert.Equal(t, "local", mgr.Get().Mode)

	err = mgr.UpdateFromJSON(`{"thresholds":{"max_drawdown":1.5}}`)
	require.Error(t, err)
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	require.NoError(t, mgr.Watch(ctx, func(cfg Config) {
		reloaded <- cfg
	}))

	cfg := mgr.Get()
	cfg.Thresholds.Volatility = 0.42

	require.NoError(t, writeConfigFile(mgr.Path(), cfg))

	select {
	case got := <-reloaded:
		assert.Equal(t, 0.42, got.Thresholds.Volatility)
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
}

func TestManagerCustomPathAndDebounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stockmate.json")
	mgr, err := NewManager(WithConfigPath(path), WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, path, mgr.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	require.NoError(t, mgr.Watch(ctx, func(cfg Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}))

	cfg := mgr.Get()
	cfg.Data.NewsLimit = 7
	require.NoError(t, writeConfigFile(path, cfg))

	select {
	case got := <-reloaded:
		assert.Equal(t, 7, got.Data.NewsLimit)
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("STOCKMATE_VOL_THRESHOLD", "0.3")
	t.Setenv("STOCKMATE_LOOKBACK_DAYS", "180")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("STOCKMATE_NEWS_LIMIT", "not-a-number")

	cfg := DefaultConfigWithRoot(t.TempDir())
	cfg.ApplyEnv()

	assert.Equal(t, 0.3, cfg.Thresholds.Volatility)
	assert.Equal(t, 180, cfg.Data.LookbackDays)
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, "sk-test", cfg.DeepSeekAPIKey)
	assert.Equal(t, 10, cfg.Data.NewsLimit)
	require.NoError(t, cfg.Validate())
}

func TestSecretsAreNotPersisted(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfigWithRoot(dir)
	cfg.DeepSeekAPIKey = "sk-secret"
	path := filepath.Join(dir, "config.json")

	require.NoError(t, writeConfigFile(path, *cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-secret")
}

func TestManagerRejectsUnknownKeys(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	require.NoError(t, err)

	err = mgr.UpdateFromJSON(`{"thresholds":{"volatilty":0.5}}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volatilty")
	assert.Equal(t, 0.35, mgr.Get().Thresholds.Volatility)
}

func TestManagerEffectiveLayersEnvironment(t *testing.T) {
	t.Setenv("STOCKMATE_VOL_THRESHOLD", "0.3")
	t.Setenv("DEEPSEEK_API_KEY", "sk-env")

	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	require.NoError(t, err)

	assert.Equal(t, 0.35, mgr.Get().Thresholds.Volatility)
	assert.Equal(t, 0.3, mgr.Effective().Thresholds.Volatility)
	assert.Equal(t, "sk-env", mgr.Effective().DeepSeekAPIKey)

	require.NoError(t, mgr.UpdateFromJSON(`{"data":{"news_limit":5}}`))
	raw, err := os.ReadFile(mgr.Path())
	require.NoError(t, err)

	var persisted Config
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, 0.35, persisted.Thresholds.Volatility)
	assert.Equal(t, 5, persisted.Data.NewsLimit)
	assert.NotContains(t, string(raw), "sk-env")
}

func TestManagerNotifiesEffectiveConfig(t *testing.T) {
	t.Setenv("STOCKMATE_NEWS_LIMIT", "9")

	mgr, err := NewManager(WithConfigDir(t.TempDir()), WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 4)
	require.NoError(t, mgr.Watch(ctx, func(cfg Config) { reloaded <- cfg }))

	cfg := mgr.Get()
	cfg.Thresholds.MaxDrawdown = 0.3
	require.NoError(t, writeConfigFile(mgr.Path(), cfg))

	select {
	case got := <-reloaded:
		assert.Equal(t, 0.3, got.Thresholds.MaxDrawdown)
		assert.Equal(t, 9, got.Data.NewsLimit)
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
	assert.Equal(t, 10, mgr.Get().Data.NewsLimit)
}

func TestManagerOwnWritesNotifyOnce(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()), WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	require.NoError(t, mgr.Watch(ctx, func(Config) { calls.Add(1) }))

	require.NoError(t, mgr.UpdateFromJSON(`{"thresholds":{"volatility":0.4}}`))
	assert.Equal(t, int32(1), calls.Load())

	// the watcher sees the write but recognises the bytes it wrote
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	// no-op updates do not notify at all
	require.NoError(t, mgr.UpdateFromJSON(`{"thresholds":{"volatility":0.4}}`))
	assert.Equal(t, int32(1), calls.Load())
}

func TestManagerKeepsConfigWhenFileIsBroken(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()), WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 4)
	require.NoError(t, mgr.Watch(ctx, func(cfg Config) { reloaded <- cfg }))

	require.NoError(t, os.WriteFile(mgr.Path(), []byte(`{"thresholds":`), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, reloaded)
	assert.Equal(t, 0.35, mgr.Get().Thresholds.Volatility)

	require.NoError(t, os.WriteFile(mgr.Path(), []byte(`{"mode":"oracle"}`), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, reloaded)
	assert.Equal(t, "local", mgr.Get().Mode)

	require.NoError(t, os.WriteFile(mgr.Path(), []byte(`{"thresholds":{"volatility":0.45}}`), 0o644))
	select {
	case got := <-reloaded:
		assert.Equal(t, 0.45, got.Thresholds.Volatility)
		assert.Equal(t, 0.20, got.Thresholds.MaxDrawdown)
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not pick up the repaired file")
	}
}

func TestManagerRecreatesDeletedFile(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()), WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, mgr.UpdateFromJSON(`{"thresholds":{"volatility":0.4}}`))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, mgr.Watch(ctx, func(Config) {}))

	require.NoError(t, os.Remove(mgr.Path()))
	require.Eventually(t, func() bool {
		raw, err := os.ReadFile(mgr.Path())
		if err != nil {
			return false
		}
		var cfg Config
		return json.Unmarshal(raw, &cfg) == nil && cfg.Thresholds.Volatility == 0.4
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0.4, mgr.Get().Thresholds.Volatility)
}

func TestChangedSections(t *testing.T) {
	base := *DefaultConfigWithRoot("/tmp/stockmate")

	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{"identical", func(*Config) {}, nil},
		{"threshold", func(c *Config) { c.Thresholds.Volatility = 0.5 }, []string{"thresholds"}},
		{"mode and data", func(c *Config) { c.Mode = "llm"; c.Data.NewsLimit = 3 }, []string{"mode", "data"}},
		{"cache counts as data", func(c *Config) { c.CacheEnabled = false }, []string{"data"}},
		{"paths and logging", func(c *Config) { c.DBPath = ""; c.LogLevel = "debug" }, []string{"paths", "logging"}},
		{"secrets are not a section", func(c *Config) { c.DeepSeekAPIKey = "sk" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base
			tt.mutate(&next)
			assert.Equal(t, tt.want, ChangedSections(base, next))
		})
	}
}
