// Package config loads application configuration from YAML with environment
// variable overrides. A .env file in the working directory is honored.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Engine   EngineConfig   `yaml:"engine"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory repositories.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig holds export file storage settings.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// EngineConfig holds execution tuning.
type EngineConfig struct {
	MaxParallel int `yaml:"max_parallel"` // concurrent nodes per run (default: 10)
	GlobalMax   int `yaml:"global_max"`   // max concurrent runs system-wide (default: 10)
	PerWorkflow int `yaml:"per_workflow"` // max concurrent runs per workflow (default: 3)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{Dir: "data/files"},
		Engine: EngineConfig{
			MaxParallel: 10,
			GlobalMax:   10,
			PerWorkflow: 3,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML configuration file at path and returns a Config with
// environment overrides applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, it returns defaults with environment overrides.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	// .env is optional; variables already in the environment win
	godotenv.Load()

	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with FLUME_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("FLUME_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("FLUME_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("FLUME_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("FLUME_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("FLUME_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}
