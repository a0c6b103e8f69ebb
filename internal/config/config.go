package config

import (
	"os"
	"path/filepath"
	"reflect"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	appName        = "sophon-core"
	configFileName = "config.yaml"
)

// Config holds the configuration options for the application.
type Config struct {
	Edition string `yaml:"edition,omitempty"`
	Threads int    `yaml:"threads,omitempty"`
	TempDir string `yaml:"tempDir,omitempty"`
	// HPatchzPath is the hpatchz binary used by updates.
	HPatchzPath        string `yaml:"hpatchz,omitempty"`
	SkipFreeSpaceCheck bool   `yaml:"skipFreeSpaceCheck,omitempty"`
	// SpeedLimit caps chunk downloads in bytes per second. Zero means unlimited.
	SpeedLimit       int64  `yaml:"speedLimit,omitempty"`
	MaxConnections   int    `yaml:"maxConnections,omitempty"`
	HashCachePath    string `yaml:"hashCache,omitempty"`
	DisableHashCache bool   `yaml:"disableHashCache,omitempty"`
	LogLevel         string `yaml:"logLevel,omitempty"`
}

// Path is the location Get reads from.
func Path() string {
	return filepath.Join(xdg.ConfigHome, appName, configFileName)
}

// Get reads the configuration file from the XDG config home.
// If the configuration file does not exist, it returns the default configuration.
func Get() (*Config, error) {
	return Load(Path())
}

// Load reads the configuration at path, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	defaults := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	return &Config{
		Edition:            zeroOr(cfg.Edition, defaults.Edition),
		Threads:            zeroOr(cfg.Threads, defaults.Threads),
		TempDir:            zeroOr(cfg.TempDir, defaults.TempDir),
		HPatchzPath:        zeroOr(cfg.HPatchzPath, defaults.HPatchzPath),
		SkipFreeSpaceCheck: zeroOr(cfg.SkipFreeSpaceCheck, defaults.SkipFreeSpaceCheck),
		SpeedLimit:         cfg.SpeedLimit,
		MaxConnections:     zeroOr(cfg.MaxConnections, defaults.MaxConnections),
		HashCachePath:      zeroOr(cfg.HashCachePath, defaults.HashCachePath),
		DisableHashCache:   zeroOr(cfg.DisableHashCache, defaults.DisableHashCache),
		LogLevel:           zeroOr(cfg.LogLevel, defaults.LogLevel),
	}, nil
}

// Save writes cfg to path, creating its directory.
func Save(path string, cfg *Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, b, 0o644)
}

func Default() Config {
	return Config{
		Edition:            edition,
		Threads:            threads,
		TempDir:            tempDir,
		HPatchzPath:        hpatchzPath,
		SkipFreeSpaceCheck: skipFreeSpaceCheck,
		MaxConnections:     maxConnections,
		HashCachePath:      hashCachePath,
		DisableHashCache:   disableHashCache,
		LogLevel:           logLevel,
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
