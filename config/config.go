package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Service ServiceConfig `yaml:"service"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Model   ModelConfig   `yaml:"model"`
	Audit   AuditConfig   `yaml:"audit"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty: stdout only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type ModelConfig struct {
	Path        string        `yaml:"path"`
	InfoPath    string        `yaml:"info_path"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// AuditConfig enables the SQLite prediction log when Path is set.
type AuditConfig struct {
	Path   string `yaml:"path"`
	Buffer int    `yaml:"buffer"`
}

func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:    "Penguin Species Classification API",
			Version: "1.0.0",
		},
		HTTP: HTTPConfig{
			Port:           8080,
			Timeout:        30 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Model: ModelConfig{
			Path:     "data/model.json",
			InfoPath: "data/model_info.json",
		},
		Audit: AuditConfig{
			Buffer: 1024,
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PENGUIN_MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("PENGUIN_MODEL_INFO_PATH"); v != "" {
		c.Model.InfoPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.HTTP.Port = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Service.Name == "" {
		c.Service.Name = def.Service.Name
	}
	if c.Service.Version == "" {
		c.Service.Version = def.Service.Version
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = def.HTTP.Timeout
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = def.HTTP.MaxBodyBytes
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Audit.Buffer <= 0 {
		c.Audit.Buffer = def.Audit.Buffer
	}
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Model.Path == "" || c.Model.InfoPath == "" {
		return errors.New("model.path and model.info_path are required")
	}
	if c.Model.WaitTimeout < 0 {
		return errors.New("model.wait_timeout must not be negative")
	}
	return nil
}
