// Package config provides configuration management for the zoom-transfer function
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported destination providers
const (
	ProviderDropbox = "dropbox"
	ProviderBox     = "box"
	ProviderS3      = "s3"
)

// ZoomConfig holds the Zoom OAuth app (authorization code flow) settings
type ZoomConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	RedirectURL  string `yaml:"redirect_url" json:"redirect_url"`
	AuthURL      string `yaml:"auth_url" json:"auth_url"`
	TokenURL     string `yaml:"token_url" json:"token_url"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
}

// DropboxConfig holds Dropbox app credentials
type DropboxConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	RefreshToken string `yaml:"refresh_token" json:"refresh_token"`
}

// BoxConfig holds Box API authentication and settings
type BoxConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	RefreshToken string `yaml:"refresh_token" json:"refresh_token"`
	FolderID     string `yaml:"folder_id" json:"folder_id"`
}

// S3Config holds the S3 bucket settings
type S3Config struct {
	Bucket string `yaml:"bucket" json:"bucket"`
	Prefix string `yaml:"prefix" json:"prefix"`
	Region string `yaml:"region" json:"region"`
}

// DestinationConfig selects and configures the upload destination
type DestinationConfig struct {
	Provider string        `yaml:"provider" json:"provider"`
	Dropbox  DropboxConfig `yaml:"dropbox" json:"dropbox"`
	Box      BoxConfig     `yaml:"box" json:"box"`
	S3       S3Config      `yaml:"s3" json:"s3"`
}

// DownloadConfig holds download-related settings
type DownloadConfig struct {
	LocalDir          string  `yaml:"local_dir" json:"local_dir"`
	RetryAttempts     int     `yaml:"retry_attempts" json:"retry_attempts"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" json:"timeout_seconds"`
	Concurrency       int     `yaml:"concurrency" json:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// TimeoutDuration returns the timeout as a time.Duration
func (d DownloadConfig) TimeoutDuration() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	JSONFormat bool   `yaml:"json_format" json:"json_format"`
}

// HostsConfig holds the meeting host allowlist settings
type HostsConfig struct {
	File  string `yaml:"file" json:"file"`
	Watch bool   `yaml:"watch" json:"watch"`
}

// SecretsConfig controls where missing secrets are resolved from
type SecretsConfig struct {
	SSMPrefix string `yaml:"ssm_prefix" json:"ssm_prefix"`
}

// Config represents the complete function configuration
type Config struct {
	Zoom        ZoomConfig        `yaml:"zoom" json:"zoom"`
	Destination DestinationConfig `yaml:"destination" json:"destination"`
	Download    DownloadConfig    `yaml:"download" json:"download"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Hosts       HostsConfig       `yaml:"hosts" json:"hosts"`
	Secrets     SecretsConfig     `yaml:"secrets" json:"secrets"`
}

// LoadConfig loads configuration from a YAML file with defaults and environment variable overrides.
// An empty path skips the file, which is how the function runs when deployed.
func LoadConfig(configPath string) (*Config, error) {
	config, err := LoadUnvalidated(configPath)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// LoadUnvalidated loads the configuration without validating it. Callers that
// resolve secrets from an external store validate once that is done.
func LoadUnvalidated(configPath string) (*Config, error) {
	config := &Config{}

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config.setDefaults()

	if err := config.loadFromEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func (c *Config) loadFromFile(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// setDefaults applies default values for missing configuration
func (c *Config) setDefaults() {
	if c.Zoom.AuthURL == "" {
		c.Zoom.AuthURL = "https://zoom.us/oauth/authorize"
	}
	if c.Zoom.TokenURL == "" {
		c.Zoom.TokenURL = "https://zoom.us/oauth/token"
	}
	if c.Zoom.BaseURL == "" {
		c.Zoom.BaseURL = "https://api.zoom.us/v2"
	}

	if c.Destination.Provider == "" {
		c.Destination.Provider = ProviderDropbox
	}
	if c.Destination.Box.FolderID == "" {
		c.Destination.Box.FolderID = "0"
	}

	if c.Download.LocalDir == "" {
		c.Download.LocalDir = filepath.Join(os.TempDir(), "zoom-transfer")
	}
	if c.Download.RetryAttempts == 0 {
		c.Download.RetryAttempts = 3
	}
	if c.Download.TimeoutSeconds == 0 {
		c.Download.TimeoutSeconds = 300
	}
	if c.Download.Concurrency == 0 {
		c.Download.Concurrency = 3
	}
	if c.Download.RequestsPerSecond == 0 {
		c.Download.RequestsPerSecond = 10
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// loadFromEnvironment overrides configuration with environment variables
func (c *Config) loadFromEnvironment() error {
	overrides := map[string]*string{
		"ZOOM_CLIENT_ID":        &c.Zoom.ClientID,
		"ZOOM_CLIENT_SECRET":    &c.Zoom.ClientSecret,
		"ZOOM_REDIRECT_URL":     &c.Zoom.RedirectURL,
		"ZOOM_BASE_URL":         &c.Zoom.BaseURL,
		"DESTINATION_PROVIDER":  &c.Destination.Provider,
		"DROPBOX_CLIENT_ID":     &c.Destination.Dropbox.ClientID,
		"DROPBOX_CLIENT_SECRET": &c.Destination.Dropbox.ClientSecret,
		"DROPBOX_REFRESH_TOKEN": &c.Destination.Dropbox.RefreshToken,
		"BOX_CLIENT_ID":         &c.Destination.Box.ClientID,
		"BOX_CLIENT_SECRET":     &c.Destination.Box.ClientSecret,
		"BOX_REFRESH_TOKEN":     &c.Destination.Box.RefreshToken,
		"BOX_FOLDER_ID":         &c.Destination.Box.FolderID,
		"S3_BUCKET":             &c.Destination.S3.Bucket,
		"S3_PREFIX":             &c.Destination.S3.Prefix,
		"AWS_REGION":            &c.Destination.S3.Region,
		"TMP_DOWNLOAD_LOCATION": &c.Download.LocalDir,
		"LOG_LEVEL":             &c.Logging.Level,
		"HOSTS_FILE":            &c.Hosts.File,
		"SSM_PREFIX":            &c.Secrets.SSMPrefix,
	}
	for key, target := range overrides {
		if val := os.Getenv(key); val != "" {
			*target = val
		}
	}

	if val := os.Getenv("DOWNLOAD_CONCURRENCY"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("DOWNLOAD_CONCURRENCY must be an integer: %w", err)
		}
		c.Download.Concurrency = n
	}
	if val := os.Getenv("DOWNLOAD_TIMEOUT_SECONDS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("DOWNLOAD_TIMEOUT_SECONDS must be an integer: %w", err)
		}
		c.Download.TimeoutSeconds = n
	}

	c.Destination.Provider = strings.ToLower(c.Destination.Provider)
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	if c.Zoom.ClientID == "" {
		return fmt.Errorf("zoom.client_id is required")
	}
	if c.Zoom.ClientSecret == "" {
		return fmt.Errorf("zoom.client_secret is required")
	}
	if c.Zoom.RedirectURL == "" {
		return fmt.Errorf("zoom.redirect_url is required")
	}

	switch c.Destination.Provider {
	case ProviderDropbox:
		d := c.Destination.Dropbox
		if d.ClientID == "" || d.ClientSecret == "" || d.RefreshToken == "" {
			return fmt.Errorf("destination.dropbox requires client_id, client_secret and refresh_token")
		}
	case ProviderBox:
		b := c.Destination.Box
		if b.ClientID == "" || b.ClientSecret == "" || b.RefreshToken == "" {
			return fmt.Errorf("destination.box requires client_id, client_secret and refresh_token")
		}
	case ProviderS3:
		if c.Destination.S3.Bucket == "" {
			return fmt.Errorf("destination.s3.bucket is required")
		}
	default:
		return fmt.Errorf("destination.provider must be one of: %s, %s, %s", ProviderDropbox, ProviderBox, ProviderS3)
	}

	if c.Download.RetryAttempts < 0 {
		return fmt.Errorf("download.retry_attempts must be >= 0")
	}
	if c.Download.TimeoutSeconds <= 0 {
		return fmt.Errorf("download.timeout_seconds must be greater than 0")
	}
	if c.Download.Concurrency <= 0 {
		return fmt.Errorf("download.concurrency must be greater than 0")
	}
	if c.Download.RequestsPerSecond < 0 {
		return fmt.Errorf("download.requests_per_second cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}

// GetBoxConfig returns the Box configuration
func (c *Config) GetBoxConfig() BoxConfig {
	return c.Destination.Box
}
