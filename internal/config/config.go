// Package config loads the YAML configuration shared by the server and
// CLI front ends. It carries none of the engine's own invariants; it
// only tells the front ends where the store lives, which addresses to
// use, how big to make the worker pool, and the compaction threshold.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kartpop/kvs/internal/log"
)

// DefaultWorkerPoolSize is the server's worker count when no
// configuration overrides it.
const DefaultWorkerPoolSize = 4

// Config is the on-disk shape of kvs.yaml. A field the file leaves
// zero takes its value from Default(), so a missing file is equivalent
// to an empty one.
type Config struct {
	StoreDir            string `yaml:"store_dir"`
	ServerAddress       string `yaml:"server_address"`
	AdminAddress        string `yaml:"admin_address"`
	WorkerPoolSize      int    `yaml:"worker_pool_size"`
	CompactionThreshold uint64 `yaml:"compaction_threshold"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		StoreDir:            ".",
		ServerAddress:       "127.0.0.1:4000",
		AdminAddress:        "127.0.0.1:4001",
		WorkerPoolSize:      DefaultWorkerPoolSize,
		CompactionThreshold: log.DefaultCompactionThreshold,
	}
}

// Load reads and parses path, filling in defaults for any field the
// file leaves zero. A missing file is not an error: Load just returns
// Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return Config{}, err
	}

	if parsed.StoreDir != "" {
		cfg.StoreDir = parsed.StoreDir
	}
	if parsed.ServerAddress != "" {
		cfg.ServerAddress = parsed.ServerAddress
	}
	if parsed.AdminAddress != "" {
		cfg.AdminAddress = parsed.AdminAddress
	}
	if parsed.WorkerPoolSize != 0 {
		cfg.WorkerPoolSize = parsed.WorkerPoolSize
	}
	if parsed.CompactionThreshold != 0 {
		cfg.CompactionThreshold = parsed.CompactionThreshold
	}
	return cfg, nil
}
