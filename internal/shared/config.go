package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Engine      EngineConfig      `toml:"engine"`
	AI          AIConfig          `toml:"ai"`
	RateLimit   RateLimitConfig   `toml:"ratelimit"`
}

// CredentialsConfig contains catalog-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
	LastFM  LastFMConfig  `toml:"lastfm"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	TokenPath    string `toml:"token_path"`
}

// Map converts the credentials to the map form the catalog constructor takes.
func (c SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"redirect_uri":  c.RedirectURI,
	}
}

// YouTubeConfig contains YouTube Music proxy settings.
type YouTubeConfig struct {
	ProxyURL    string `toml:"proxy_url"`
	ClientToken string `toml:"client_token"`
}

// LastFMConfig contains Last.fm tag/scrobble API settings.
type LastFMConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	AuthToken string `toml:"auth_token"`
}

// EngineConfig contains sort scheduler and queue settings.
type EngineConfig struct {
	MaxAIJobs          int     `toml:"max_ai_jobs"`           // concurrent AI-assisted sort slots
	QueueCap           int     `toml:"queue_cap"`             // hard admission cap (queued + running)
	DegradeBelowHealth int     `toml:"degrade_below_health"`  // force heuristic-only under this health score
	DefaultConcurrency int     `toml:"default_concurrency"`   // metadata fetch concurrency fallback
	DefaultBatchSize   int     `toml:"default_batch_size"`    // metadata fetch batch size fallback
	SourceRateLimit    float64 `toml:"source_rate_limit_rps"` // per-catalog request pacing
}

// AIConfig contains language model settings for sort verification.
type AIConfig struct {
	APIKey         string `toml:"api_key"`
	PrimaryModel   string `toml:"primary_model"`
	FallbackModel  string `toml:"fallback_model"`
	MaxAttempts    int    `toml:"max_attempts"`
	BackoffBaseMS  int    `toml:"backoff_base_ms"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// BackoffBase returns the first retry delay as a [time.Duration].
func (c AIConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

// Timeout returns the per-attempt request timeout as a [time.Duration].
func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimitConfig contains per-user admission window settings.
type RateLimitConfig struct {
	Requests      int `toml:"requests"`
	WindowSeconds int `toml:"window_seconds"`
}

// Window returns the admission window as a [time.Duration].
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
