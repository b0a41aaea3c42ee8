// Package config holds silo's configuration knobs: the database file
// path, default container name, busy timeout, transaction isolation
// level, codec compression level, and the farm's directory/shard
// count/harvest batch size/self-triggered clean_all_shards retention
// window.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// IsolationLevel names the SQLite BEGIN mode used by the connection
// manager for write operations.
type IsolationLevel string

const (
	Deferred  IsolationLevel = "DEFERRED"
	Immediate IsolationLevel = "IMMEDIATE"
	Exclusive IsolationLevel = "EXCLUSIVE"
)

// Config is the full set of tunables described in spec's external
// interfaces section.
type Config struct {
	Path             string         `yaml:"path"`
	DefaultContainer string         `yaml:"defaultContainer"`
	BusyTimeout      time.Duration  `yaml:"busyTimeout"`
	Isolation        IsolationLevel `yaml:"isolation"`
	CompressionLevel int            `yaml:"compressionLevel"`

	FarmDir          string  `yaml:"farmDir"`
	FarmShards       int     `yaml:"farmShards"`
	HarvestBatchSize int     `yaml:"harvestBatchSize"`
	CleanFreshDays   float64 `yaml:"cleanFreshDays"`
}

// Default returns a Config pointed at path with spec's documented
// defaults: a 14 second busy timeout, IMMEDIATE isolation, compression
// level 7, a 9-shard farm rooted next to the target file, and a 30 day
// clean_all_shards retention window for Plant's self-triggered sweep.
func Default(path string) Config {
	return Config{
		Path:             path,
		DefaultContainer: "tmptable",
		BusyTimeout:      14 * time.Second,
		Isolation:        Immediate,
		CompressionLevel: 7,
		FarmDir:          path + ".farm",
		FarmShards:       9,
		HarvestBatchSize: 10,
		CleanFreshDays:   30,
	}
}

// Load reads a YAML configuration file with os.ReadFile, then
// yaml.Unmarshal. Fields absent from the file keep Default's values.
func Load(path string) (Config, error) {
	cfg := Default("")
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Path == "" {
		return Config{}, fmt.Errorf("config: %s: path is required", path)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot act on.
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("config: path is required")
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 9 {
		return fmt.Errorf("config: compressionLevel must be 1-9, got %d", c.CompressionLevel)
	}
	if c.FarmShards < 0 {
		return fmt.Errorf("config: farmShards must be >= 0, got %d", c.FarmShards)
	}
	if c.HarvestBatchSize < 1 {
		return fmt.Errorf("config: harvestBatchSize must be >= 1, got %d", c.HarvestBatchSize)
	}
	switch c.Isolation {
	case Deferred, Immediate, Exclusive:
	default:
		return fmt.Errorf("config: unknown isolation level %q", c.Isolation)
	}
	return nil
}
