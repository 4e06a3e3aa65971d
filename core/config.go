package core

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds the engine settings read from an augustus.toml file
type Config struct {
	Trace       TraceConfig       `toml:"trace"`
	Performance PerformanceConfig `toml:"performance"`
	State       StateConfig       `toml:"state"`
	Formula     FormulaConfig     `toml:"formula"`
	Input       InputConfig       `toml:"input"`
}

type TraceConfig struct {
	Level      string `toml:"level"`
	Components string `toml:"components"`
}

type PerformanceConfig struct {
	Enabled bool   `toml:"enabled"`
	SortBy  string `toml:"sort_by"`
}

type StateConfig struct {
	Dir         string `toml:"dir"`
	Compression string `toml:"compression"`
}

type FormulaConfig struct {
	CacheSize int `toml:"cache_size"`
}

type InputConfig struct {
	BatchSize int `toml:"batch_size"`
	Workers   int `toml:"workers"`
}

// DefaultConfig returns the settings used when no file is given
func DefaultConfig() Config {
	return Config{
		Trace:       TraceConfig{Level: "OFF"},
		Performance: PerformanceConfig{Enabled: false, SortBy: "time"},
		State:       StateConfig{Dir: ".augustus-state", Compression: "snappy"},
		Formula:     FormulaConfig{CacheSize: 256},
		Input:       InputConfig{BatchSize: 10000, Workers: 1},
	}
}

// LoadConfig decodes a TOML file on top of DefaultConfig
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return config, errors.Wrapf(err, "reading config %s", path)
	}
	return config, config.Validate()
}

// ParseConfig decodes TOML text on top of DefaultConfig
func ParseConfig(text string) (Config, error) {
	config := DefaultConfig()
	if _, err := toml.Decode(text, &config); err != nil {
		return config, errors.Wrap(err, "parsing config")
	}
	return config, config.Validate()
}

// Validate rejects settings the engine cannot honor
func (c Config) Validate() error {
	if _, ok := ParseTraceLevel(c.Trace.Level); c.Trace.Level != "" && !ok {
		return errors.Errorf("unknown trace level %q", c.Trace.Level)
	}
	switch c.Performance.SortBy {
	case "", "time", "calls", "timePerCall", "name":
	default:
		return errors.Errorf("unknown performance sort_by %q", c.Performance.SortBy)
	}
	switch c.State.Compression {
	case "", "none", "snappy", "zstd", "gzip":
	default:
		return errors.Errorf("unknown state compression %q", c.State.Compression)
	}
	if c.Formula.CacheSize < 0 {
		return errors.New("formula cache_size must not be negative")
	}
	if c.Input.BatchSize < 0 || c.Input.Workers < 0 {
		return errors.New("input batch_size and workers must not be negative")
	}
	return nil
}

// ApplyTrace configures tracer from the [trace] section; environment
// variables are applied afterwards so they win
func (c Config) ApplyTrace(tracer *Tracer) {
	tracer.Configure(c.Trace.Level, c.Trace.Components)
	tracer.configureFromEnv()
}
