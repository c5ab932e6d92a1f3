// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Typed configuration: defaults, file and env loading, validation, and a
// thread-safe store with reload listeners.

package control

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/momentics/shmstack/api"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes environment overrides, e.g. SHMSTACK_POOL_COUNT.
const EnvPrefix = "SHMSTACK"

// Config is the full runtime configuration.
type Config struct {
	Pool    PoolConfig    `mapstructure:"pool"`
	Bench   BenchConfig   `mapstructure:"bench"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// PoolConfig sizes the frame pool.
type PoolConfig struct {
	Count     int  `mapstructure:"count"`
	FrameSize int  `mapstructure:"frameSize"`
	HeapOnly  bool `mapstructure:"heapOnly"`
}

// BenchConfig drives the producer/consumer harness. Zero intervals select
// the built-in scenario table.
type BenchConfig struct {
	Duration        time.Duration `mapstructure:"duration"`
	Producers       int           `mapstructure:"producers"`
	Consumers       int           `mapstructure:"consumers"`
	ProduceInterval time.Duration `mapstructure:"produceInterval"`
	ConsumeInterval time.Duration `mapstructure:"consumeInterval"`
}

// LogConfig selects the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig sets the Prometheus listen address; empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns the built-in configuration: five 320x240 RGBA frames.
func DefaultConfig() Config {
	return Config{
		Pool: PoolConfig{
			Count:     5,
			FrameSize: 320 * 240 * 4,
		},
		Bench: BenchConfig{
			Duration:  500 * time.Millisecond,
			Producers: 1,
			Consumers: 1,
		},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Addr: ""},
	}
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	bad := func(key string, v any) error {
		return api.NewError(api.ErrCodeInvalidArgument, "config: invalid value").
			WithContext("key", key).
			WithContext("value", v)
	}
	switch {
	case c.Pool.Count < 0:
		return bad("pool.count", c.Pool.Count)
	case c.Pool.FrameSize < 0:
		return bad("pool.frameSize", c.Pool.FrameSize)
	case c.Bench.Duration < 0:
		return bad("bench.duration", c.Bench.Duration)
	case c.Bench.Producers < 1:
		return bad("bench.producers", c.Bench.Producers)
	case c.Bench.Consumers < 1:
		return bad("bench.consumers", c.Bench.Consumers)
	case c.Bench.ProduceInterval < 0:
		return bad("bench.produceInterval", c.Bench.ProduceInterval)
	case c.Bench.ConsumeInterval < 0:
		return bad("bench.consumeInterval", c.Bench.ConsumeInterval)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return bad("log.level", c.Log.Level)
	}
	return nil
}

// Loader reads Config from an optional file plus SHMSTACK_* variables.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader prepares a loader. path may be empty to use defaults and env only.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return &Loader{v: v, path: path}, nil
}

// Config decodes and validates the current configuration.
func (l *Loader) Config() (Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Watch pushes every valid change of the config file into store. Invalid
// edits are logged and ignored. It does nothing when no file was given.
func (l *Loader) Watch(store *ConfigStore, logger *zap.Logger) {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.Config()
		if err != nil {
			logger.Warn("ignoring invalid config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		store.Update(cfg)
		logger.Info("config reloaded", zap.String("file", e.Name))
	})
	l.v.WatchConfig()
}

// LoadConfig is NewLoader followed by Config.
func LoadConfig(path string) (Config, error) {
	l, err := NewLoader(path)
	if err != nil {
		return Config{}, err
	}
	return l.Config()
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("pool.count", d.Pool.Count)
	v.SetDefault("pool.frameSize", d.Pool.FrameSize)
	v.SetDefault("pool.heapOnly", d.Pool.HeapOnly)
	v.SetDefault("bench.duration", d.Bench.Duration)
	v.SetDefault("bench.producers", d.Bench.Producers)
	v.SetDefault("bench.consumers", d.Bench.Consumers)
	v.SetDefault("bench.produceInterval", d.Bench.ProduceInterval)
	v.SetDefault("bench.consumeInterval", d.Bench.ConsumeInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// fileConfig is the on-disk shape: durations are written as strings.
type fileConfig struct {
	Pool struct {
		Count     int  `toml:"count"`
		FrameSize int  `toml:"frameSize"`
		HeapOnly  bool `toml:"heapOnly"`
	} `toml:"pool"`
	Bench struct {
		Duration        string `toml:"duration"`
		Producers       int    `toml:"producers"`
		Consumers       int    `toml:"consumers"`
		ProduceInterval string `toml:"produceInterval"`
		ConsumeInterval string `toml:"consumeInterval"`
	} `toml:"bench"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
	Metrics struct {
		Addr string `toml:"addr"`
	} `toml:"metrics"`
}

// WriteConfig encodes cfg as TOML readable by LoadConfig.
func WriteConfig(w io.Writer, cfg Config) error {
	var fc fileConfig
	fc.Pool.Count = cfg.Pool.Count
	fc.Pool.FrameSize = cfg.Pool.FrameSize
	fc.Pool.HeapOnly = cfg.Pool.HeapOnly
	fc.Bench.Duration = cfg.Bench.Duration.String()
	fc.Bench.Producers = cfg.Bench.Producers
	fc.Bench.Consumers = cfg.Bench.Consumers
	fc.Bench.ProduceInterval = cfg.Bench.ProduceInterval.String()
	fc.Bench.ConsumeInterval = cfg.Bench.ConsumeInterval.String()
	fc.Log.Level = cfg.Log.Level
	fc.Metrics.Addr = cfg.Metrics.Addr

	enc := toml.NewEncoder(w)
	if err := enc.Encode(fc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// WriteDefaultConfig encodes DefaultConfig as TOML.
func WriteDefaultConfig(w io.Writer) error {
	return WriteConfig(w, DefaultConfig())
}

// ConfigStore holds the live Config and notifies listeners on change.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore initializes a store with cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{config: cfg}
}

// Snapshot returns the current config.
func (cs *ConfigStore) Snapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// Update replaces the config and calls every listener with it, in
// registration order, outside the lock.
func (cs *ConfigStore) Update(cfg Config) {
	cs.mu.Lock()
	cs.config = cfg
	listeners := append(([]func(Config))(nil), cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

// OnReload registers a listener called on config changes.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
