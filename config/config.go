// Package config loads attackdb settings from an optional YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/renatospessotto/Trabalho-arquivos/pkg/logger"
	"github.com/renatospessotto/Trabalho-arquivos/pkg/telemetry"
)

// BackupConfig controls snapshot copies.
type BackupConfig struct {
	// RateBytesPerSec throttles the copy; 0 disables throttling.
	RateBytesPerSec int64 `yaml:"rate_bytes_per_sec"`
	// Verify re-reads every copy and compares its sha256 with the source.
	Verify bool `yaml:"verify"`
}

type Config struct {
	DataFile  string           `yaml:"data_file"`
	IndexFile string           `yaml:"index_file"`
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Backup    BackupConfig     `yaml:"backup"`
}

func Default() Config {
	return Config{
		DataFile:  "attacks.bin",
		IndexFile: "attacks.idx",
		Logger: logger.Config{
			Level:      "warn",
			Format:     "console",
			OutputFile: "stderr",
		},
		Telemetry: telemetry.Config{
			Enabled:          true,
			ServiceName:      logger.ServiceName,
			TraceSampleRatio: 1.0,
		},
		Backup: BackupConfig{Verify: true},
	}
}

// Load overlays the YAML file at path on Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}
