// Package config provides the configuration for claimvault.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/claimvault/claimvault/internal/errors"
)

// Environment selects a preset of remote-store requirements.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for claimvault.
type Config struct {
	// Environment is one of development, staging, production
	Environment Environment `json:"environment" yaml:"environment"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Storage holds the record store directories
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Backup selects where pre-write backups go
	Backup BackupConfig `json:"backup" yaml:"backup"`

	// Remote configures the remote document store
	Remote RemoteConfig `json:"remote" yaml:"remote"`

	// App holds settings consumed by callers outside the storage layer
	App AppConfig `json:"app" yaml:"app"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// StorageConfig holds record store configuration.
type StorageConfig struct {
	// ClaimsDir holds one JSON file per claim
	ClaimsDir string `json:"claims_dir" yaml:"claims_dir"`

	// EventsDir holds one JSON file per event
	EventsDir string `json:"events_dir" yaml:"events_dir"`

	// BackupDir holds timestamped copies for the local backup sink
	BackupDir string `json:"backup_dir" yaml:"backup_dir"`
}

// BackupConfig holds backup sink configuration.
type BackupConfig struct {
	// Type is the backup sink: local, s3
	Type string `json:"type" yaml:"type"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix is prepended to every object key
	Prefix string `json:"prefix" yaml:"prefix"`

	// UsePathStyle forces path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// RemoteConfig holds remote store configuration.
type RemoteConfig struct {
	// Endpoint is the database endpoint; empty means no remote store
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// ClaimsTable is the table holding claims, keyed by claim_id
	ClaimsTable string `json:"claims_table" yaml:"claims_table"`

	// EventsTable is the table holding events, keyed by event_id
	EventsTable string `json:"events_table" yaml:"events_table"`

	// UseManagedIdentity selects the ambient credential chain over a static key
	UseManagedIdentity bool `json:"use_managed_identity" yaml:"use_managed_identity"`

	// AccessKeyID is the static access key (when managed identity is off)
	AccessKeyID string `json:"access_key_id" yaml:"access_key_id"`

	// SecretAccessKey is the static secret key
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`

	// SessionToken is an optional static session token
	SessionToken string `json:"session_token" yaml:"session_token"`

	// RoleARN, when set with managed identity, is assumed through STS
	RoleARN string `json:"role_arn" yaml:"role_arn"`

	// FallbackToLocal allows running local-only when the remote store is
	// unreachable or unconfigured
	FallbackToLocal bool `json:"fallback_to_local" yaml:"fallback_to_local"`

	// Timeout bounds each remote call
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxAttempts bounds SDK retries per call
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

// Configured reports whether a remote endpoint is set.
func (r RemoteConfig) Configured() bool {
	return strings.TrimSpace(r.Endpoint) != ""
}

// AppConfig holds settings for the upload surface.
type AppConfig struct {
	// UploadFolder is where uploaded artifacts are saved
	UploadFolder string `json:"upload_folder" yaml:"upload_folder"`

	// MaxContentLength caps request bodies in bytes
	MaxContentLength int64 `json:"max_content_length" yaml:"max_content_length"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		DataDir:     "./data/claimvault",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Backup: BackupConfig{
			Type: "local",
		},
		Remote: RemoteConfig{
			Region:          "us-east-1",
			ClaimsTable:     "claims",
			EventsTable:     "events",
			FallbackToLocal: true,
			Timeout:         10 * time.Second,
			MaxAttempts:     3,
		},
		App: AppConfig{
			MaxContentLength: 16 * 1024 * 1024,
		},
	}
}

// Resolve resolves relative paths and applies the environment preset.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/claimvault"
	}
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}

	if c.Storage.ClaimsDir == "" {
		c.Storage.ClaimsDir = filepath.Join(c.DataDir, "claims")
	}
	if c.Storage.EventsDir == "" {
		c.Storage.EventsDir = filepath.Join(c.DataDir, "events")
	}
	if c.Storage.BackupDir == "" {
		c.Storage.BackupDir = filepath.Join(c.DataDir, "backups")
	}
	if c.App.UploadFolder == "" {
		c.App.UploadFolder = filepath.Join(c.DataDir, "uploads")
	}

	// Production always authenticates with the ambient identity and never
	// degrades to local-only.
	if c.Environment == EnvProduction {
		c.Remote.UseManagedIdentity = true
		c.Remote.FallbackToLocal = false
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return apperrors.NewConfigError(apperrors.CodeInvalidSetting,
			fmt.Sprintf("invalid environment: %s (must be development, staging, or production)", c.Environment))
	}

	if c.DataDir == "" {
		return apperrors.NewConfigError(apperrors.CodeMissingSetting, "data_dir is required")
	}

	if c.Backup.Type != "local" && c.Backup.Type != "s3" {
		return apperrors.NewConfigError(apperrors.CodeInvalidSetting,
			fmt.Sprintf("invalid backup type: %s (must be local or s3)", c.Backup.Type))
	}
	if c.Backup.Type == "s3" && c.Backup.S3.Bucket == "" {
		return apperrors.NewConfigError(apperrors.CodeMissingSetting, "backup.s3.bucket is required when backup type is s3")
	}

	if c.Remote.Timeout <= 0 {
		return apperrors.NewConfigError(apperrors.CodeInvalidSetting, "remote.timeout must be positive")
	}
	if c.Remote.MaxAttempts < 1 {
		return apperrors.NewConfigError(apperrors.CodeInvalidSetting,
			fmt.Sprintf("remote.max_attempts must be at least 1, got %d", c.Remote.MaxAttempts))
	}
	if c.Remote.Configured() && (c.Remote.ClaimsTable == "" || c.Remote.EventsTable == "") {
		return apperrors.NewConfigError(apperrors.CodeMissingSetting, "remote.claims_table and remote.events_table are required")
	}

	switch c.Environment {
	case EnvStaging:
		if !c.Remote.Configured() {
			return apperrors.NewConfigError(apperrors.CodeMissingSetting, "remote.endpoint is required in staging")
		}
		if !c.Remote.UseManagedIdentity && c.Remote.AccessKeyID == "" {
			return apperrors.NewConfigError(apperrors.CodeMissingSetting, "remote.access_key_id is required in staging without managed identity")
		}
	case EnvProduction:
		if !c.Remote.Configured() {
			return apperrors.NewConfigError(apperrors.CodeMissingSetting, "remote.endpoint is required in production")
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the CLAIMVAULT_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CLAIMVAULT_ENV"); v != "" {
		cfg.Environment = Environment(strings.ToLower(v))
	}
	if v := os.Getenv("CLAIMVAULT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// HTTP configuration
	if v := os.Getenv("CLAIMVAULT_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Record store configuration
	if v := os.Getenv("CLAIMVAULT_CLAIMS_DIR"); v != "" {
		cfg.Storage.ClaimsDir = v
	}
	if v := os.Getenv("CLAIMVAULT_EVENTS_DIR"); v != "" {
		cfg.Storage.EventsDir = v
	}
	if v := os.Getenv("CLAIMVAULT_BACKUP_DIR"); v != "" {
		cfg.Storage.BackupDir = v
	}

	// Backup sink configuration
	if v := os.Getenv("CLAIMVAULT_BACKUP_TYPE"); v != "" {
		cfg.Backup.Type = v
	}
	if v := os.Getenv("CLAIMVAULT_S3_BUCKET"); v != "" {
		cfg.Backup.S3.Bucket = v
	}
	if v := os.Getenv("CLAIMVAULT_S3_REGION"); v != "" {
		cfg.Backup.S3.Region = v
	}
	if v := os.Getenv("CLAIMVAULT_S3_ENDPOINT"); v != "" {
		cfg.Backup.S3.Endpoint = v
	}
	if v := os.Getenv("CLAIMVAULT_S3_PREFIX"); v != "" {
		cfg.Backup.S3.Prefix = v
	}

	// Remote store configuration
	if v := os.Getenv("CLAIMVAULT_REMOTE_ENDPOINT"); v != "" {
		cfg.Remote.Endpoint = v
	}
	if v := os.Getenv("CLAIMVAULT_REMOTE_REGION"); v != "" {
		cfg.Remote.Region = v
	}
	if v := os.Getenv("CLAIMVAULT_REMOTE_CLAIMS_TABLE"); v != "" {
		cfg.Remote.ClaimsTable = v
	}
	if v := os.Getenv("CLAIMVAULT_REMOTE_EVENTS_TABLE"); v != "" {
		cfg.Remote.EventsTable = v
	}
	if v := os.Getenv("CLAIMVAULT_REMOTE_USE_MANAGED_IDENTITY"); v != "" {
		cfg.Remote.UseManagedIdentity = parseBool(v)
	}
	if v := os.Getenv("CLAIMVAULT_REMOTE_ACCESS_KEY_ID"); v != "" {
		cfg.Remote.AccessKeyID = v
	}
	if v := os.Getenv("CLAIMVAULT_REMOTE_SECRET_ACCESS_KEY"); v != "" {
		cfg.Remote.SecretAccessKey = v
	}
	if v := os.Getenv("CLAIMVAULT_REMOTE_SESSION_TOKEN"); v != "" {
		cfg.Remote.SessionToken = v
	}
	if v := os.Getenv("CLAIMVAULT_REMOTE_ROLE_ARN"); v != "" {
		cfg.Remote.RoleARN = v
	}
	if v := os.Getenv("CLAIMVAULT_REMOTE_FALLBACK_TO_LOCAL"); v != "" {
		cfg.Remote.FallbackToLocal = parseBool(v)
	}
	if v := os.Getenv("CLAIMVAULT_REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remote.Timeout = d
		}
	}
	if v := os.Getenv("CLAIMVAULT_REMOTE_MAX_ATTEMPTS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Remote.MaxAttempts)
	}

	// Upload settings
	if v := os.Getenv("CLAIMVAULT_UPLOAD_FOLDER"); v != "" {
		cfg.App.UploadFolder = v
	}
	if v := os.Getenv("CLAIMVAULT_MAX_CONTENT_LENGTH"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.App.MaxContentLength)
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return v == "yes" || v == "on"
	}
	return b
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Storage.ClaimsDir,
		c.Storage.EventsDir,
		c.App.UploadFolder,
	}
	if c.Backup.Type == "local" {
		dirs = append(dirs, c.Storage.BackupDir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
