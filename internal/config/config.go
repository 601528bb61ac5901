package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the tracking service
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logs    LogsConfig    `yaml:"logs"`
	Images  ImagesConfig  `yaml:"images"`
	Dedup   DedupConfig   `yaml:"dedup"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// LogsConfig holds the append-only event log locations
type LogsConfig struct {
	TrackingFile string `yaml:"tracking_file"`
	ImgReadFile  string `yaml:"img_read_file"`
}

// ImagesConfig holds image serving and proxy configuration
type ImagesConfig struct {
	UploadDir           string `yaml:"upload_dir"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
}

// FetchTimeout returns the remote image fetch timeout as a duration
func (c ImagesConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// DedupConfig holds open-event deduplication configuration
type DedupConfig struct {
	WindowMinutes int `yaml:"window_minutes"`
}

// Window returns the dedup window as a duration
func (c DedupConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// LoggingConfig holds structured logging configuration
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// Default returns the configuration used when no config file is present.
// The file names match the original deployment layout, relative to the
// process working directory.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, Host: "localhost"},
		Logs: LogsConfig{
			TrackingFile: "tracking_logs.jsonl",
			ImgReadFile:  "img_reads.jsonl",
		},
		Images: ImagesConfig{
			UploadDir:           "./uploads",
			FetchTimeoutSeconds: 8,
		},
		Dedup:   DedupConfig{WindowMinutes: 10},
		Logging: LoggingConfig{Level: "info", RedactPII: true},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	def := Default()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Logs.TrackingFile == "" {
		cfg.Logs.TrackingFile = def.Logs.TrackingFile
	}
	if cfg.Logs.ImgReadFile == "" {
		cfg.Logs.ImgReadFile = def.Logs.ImgReadFile
	}
	if cfg.Images.UploadDir == "" {
		cfg.Images.UploadDir = def.Images.UploadDir
	}
	if cfg.Images.FetchTimeoutSeconds == 0 {
		cfg.Images.FetchTimeoutSeconds = def.Images.FetchTimeoutSeconds
	}
	if cfg.Dedup.WindowMinutes == 0 {
		cfg.Dedup.WindowMinutes = def.Dedup.WindowMinutes
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so settings can live in .env locally and in real env vars on ECS.
// A missing config file is not an error; defaults are used instead.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = Default()
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("TRACKING_LOG_FILE"); v != "" {
		cfg.Logs.TrackingFile = v
	}
	if v := os.Getenv("IMG_READ_LOG_FILE"); v != "" {
		cfg.Logs.ImgReadFile = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.Images.UploadDir = v
	}
	if v := os.Getenv("DEDUP_WINDOW_MINUTES"); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m > 0 {
			cfg.Dedup.WindowMinutes = m
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
