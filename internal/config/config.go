// Package config loads the daemon configuration: built-in defaults, then an
// optional YAML file, then CLISER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemDB  = "memdb"
	StorageSQLite = "sqlite"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Listen   string  `yaml:"listen" env:"LISTEN"`
	LogLevel string  `yaml:"log_level" env:"LOG_LEVEL"`
	Storage  Storage `yaml:"storage" envPrefix:"STORAGE_"`
	Cache    Cache   `yaml:"cache" envPrefix:"CACHE_"`
	Redis    Redis   `yaml:"redis" envPrefix:"REDIS_"`
	Workers  Workers `yaml:"workers" envPrefix:"WORKERS_"`
}

type Storage struct {
	Kind string `yaml:"kind" env:"KIND"`
	// Path is the SQLite database file.
	Path string `yaml:"path" env:"PATH"`
}

// Cache enables the key/value connection for collections stored under ID.
type Cache struct {
	ID   string `yaml:"id" env:"ID"`
	Size int    `yaml:"size" env:"SIZE"`
}

// Redis enables change relaying when Addr is set.
type Redis struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Channel  string `yaml:"channel" env:"CHANNEL"`
}

type Workers struct {
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE"`
	NumWorkers int `yaml:"num_workers" env:"NUM_WORKERS"`
}

func Default() Config {
	return Config{
		Listen:   ":8080",
		LogLevel: "info",
		Storage:  Storage{Kind: StorageMemDB, Path: "cliser.db"},
		Cache:    Cache{ID: "cache", Size: 64},
		Redis:    Redis{Channel: "cliser:changes"},
		Workers:  Workers{BufferSize: 16, NumWorkers: 4},
	}
}

// Load reads path when it is not empty, then applies the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CLISER_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("%w: listen address is required", ErrInvalidConfig)
	}
	switch c.Storage.Kind {
	case StorageMemDB:
	case StorageSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("%w: sqlite storage needs a path", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage kind %q", ErrInvalidConfig, c.Storage.Kind)
	}
	if c.Cache.Size > 0 && c.Cache.ID == "" {
		return fmt.Errorf("%w: cache needs a storage id", ErrInvalidConfig)
	}
	return nil
}
