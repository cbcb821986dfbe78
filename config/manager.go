package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Manager owns config.json. It holds the persisted view of the config; environment overrides
// are layered on top by Effective and are never written back, so API keys stay out of the file.
//
// Subscribers registered with Watch always receive the effective config.
type Manager struct {
	path     string
	debounce time.Duration

	mu          sync.RWMutex
	cfg         Config
	lastWritten []byte
	onChange    func(Config)
	watching    bool
}

type managerOptions struct {
	configPath    string
	initialConfig *Config
	debounce      time.Duration
}

type ManagerOption func(*managerOptions)

func NewManager(opts ...ManagerOption) (*Manager, error) {
	options := managerOptions{
		debounce: 300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&options)
	}

	path := options.configPath
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	m := &Manager{path: path, debounce: options.debounce}
	if err := m.loadOrCreate(options.initialConfig); err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns the persisted config, without environment overrides.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Effective returns the config the engine runs with: the persisted config plus STOCKMATE_*,
// credential and path variables from the environment.
func (m *Manager) Effective() Config {
	return withEnv(m.Get())
}

func (m *Manager) Path() string {
	return m.path
}

// UpdateFromJSON merges a full or partial JSON document over the persisted config.
// Unknown keys are rejected so a misspelt threshold cannot be silently ignored.
func (m *Manager) UpdateFromJSON(jsonStr string) error {
	cfg := m.Get()
	dec := json.NewDecoder(bytes.NewReader([]byte(jsonStr)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return fmt.Errorf("parse config json: %w", err)
	}
	return m.Update(cfg)
}

// Update validates cfg, persists it and notifies the subscriber before returning.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if m.Get() == cfg {
		return nil
	}

	data, err := encodeConfig(cfg)
	if err != nil {
		return err
	}
	// lastWritten is set before the write lands so the watcher recognises its own event.
	m.mu.Lock()
	m.lastWritten = data
	m.mu.Unlock()
	if err := writeAtomic(m.path, data); err != nil {
		return err
	}

	m.apply(cfg)
	return nil
}

// Watch reloads config.json when another process edits it. Events are debounced; a file that
// fails to parse or validate is logged and the current config stays in force.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	m.onChange = onChange
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// 监听目录而不是文件: 原子写入会替换 inode
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	debounce := time.NewTimer(m.debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if m.isConfigEvent(evt) {
				debounce.Reset(m.debounce)
			}
		case <-debounce.C:
			m.reloadFromDisk()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", m.path).Msg("config watcher error")
		}
	}
}

func (m *Manager) isConfigEvent(evt fsnotify.Event) bool {
	if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
		return false
	}
	return evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}

func (m *Manager) reloadFromDisk() {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		// Deleting the file does not reset the thresholds in force; write them back.
		current := m.Get()
		if data, err = encodeConfig(current); err == nil {
			m.mu.Lock()
			m.lastWritten = data
			m.mu.Unlock()
			err = writeAtomic(m.path, data)
		}
		if err != nil {
			log.Error().Err(err).Str("path", m.path).Msg("config recreate failed")
		}
		return
	}
	if err != nil {
		log.Error().Err(err).Str("path", m.path).Msg("config reload failed")
		return
	}

	m.mu.RLock()
	own := bytes.Equal(data, m.lastWritten)
	m.mu.RUnlock()
	if own {
		return
	}

	cfg, err := m.decode(data)
	if err != nil {
		log.Error().Err(err).Str("path", m.path).Msg("config reload rejected, keeping current config")
		return
	}
	if err := withEnv(cfg).Validate(); err != nil {
		log.Error().Err(err).Str("path", m.path).Msg("environment overrides make the reloaded config invalid")
		return
	}
	if cfg == m.Get() {
		return
	}
	m.apply(cfg)
}

func (m *Manager) apply(cfg Config) {
	m.mu.Lock()
	previous := m.cfg
	m.cfg = cfg
	cb := m.onChange
	m.mu.Unlock()

	log.Info().Strs("sections", ChangedSections(previous, cfg)).Str("path", m.path).Msg("config updated")
	if cb != nil {
		cb(withEnv(cfg))
	}
}

// loadOrCreate reads an existing file over the rooted defaults, or writes the initial config.
func (m *Manager) loadOrCreate(initial *Config) error {
	data, err := os.ReadFile(m.path)
	switch {
	case err == nil:
		cfg, err := m.decode(data)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		m.cfg = cfg
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("read config: %w", err)
	}

	cfg := *DefaultConfigWithRoot(filepath.Dir(m.path))
	if initial != nil {
		cfg = *initial
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if data, err = encodeConfig(cfg); err != nil {
		return err
	}
	if err := writeAtomic(m.path, data); err != nil {
		return fmt.Errorf("write initial config: %w", err)
	}
	m.cfg = cfg
	m.lastWritten = data
	return nil
}

// decode parses a config file. Keys missing from the file keep their creasty defaults,
// with directories rooted next to the file.
func (m *Manager) decode(data []byte) (Config, error) {
	cfg := *DefaultConfigWithRoot(filepath.Dir(m.path))
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", m.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func withEnv(cfg Config) Config {
	cfg.ApplyEnv()
	return cfg
}

// ChangedSections names the parts of the config that differ between a and b, in a fixed order.
func ChangedSections(a, b Config) []string {
	type section struct {
		name    string
		changed bool
	}
	sections := []section{
		{"paths", a.ProjectDir != b.ProjectDir || a.ResultsDir != b.ResultsDir || a.DataDir != b.DataDir ||
			a.DataCacheDir != b.DataCacheDir || a.DBPath != b.DBPath},
		{"mode", a.Mode != b.Mode},
		{"thresholds", a.Thresholds != b.Thresholds},
		{"backtest", a.Backtest != b.Backtest},
		{"data", a.Data != b.Data || a.CacheEnabled != b.CacheEnabled},
		{"llm", a.LLMProvider != b.LLMProvider || a.LLMModel != b.LLMModel || a.BackendURL != b.BackendURL},
		{"logging", a.LogLevel != b.LogLevel || a.LogFormat != b.LogFormat || a.MetricsFile != b.MetricsFile},
		{"eino_debug", a.EinoDebugEnabled != b.EinoDebugEnabled || a.EinoDebugPort != b.EinoDebugPort},
	}
	var out []string
	for _, s := range sections {
		if s.changed {
			out = append(out, s.name)
		}
	}
	return out
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "StockMate", "config.json"), nil
}

func encodeConfig(cfg Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return append(data, '\n'), nil
}

func writeConfigFile(path string, cfg Config) error {
	data, err := encodeConfig(cfg)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// writeAtomic replaces path via a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.configPath = filepath.Join(dir, "config.json")
		}
	}
}

func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

func WithInitialConfig(cfg *Config) ManagerOption {
	return func(o *managerOptions) {
		o.initialConfig = cfg
	}
}
