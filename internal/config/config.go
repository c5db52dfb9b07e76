package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default X endpoints. All of them can be overridden in the config file,
// which is how tests point the core at httptest servers.
const (
	DefaultAuthorizeURL  = "https://x.com/i/oauth2/authorize"
	DefaultTokenURL      = "https://api.x.com/2/oauth2/token"
	DefaultRevokeURL     = "https://api.x.com/2/oauth2/revoke"
	DefaultAPIBaseURL    = "https://api.x.com"
	DefaultUploadURL     = "https://api.x.com/2/media/upload"
	DefaultStatusURLBase = "https://x.com/i/web/status/"

	DefaultPort              = 3001
	DefaultAuthDir           = "~/.post-publisher"
	DefaultMediaMaxBytes     = 5 * 1024 * 1024
	DefaultMediaFetchTimeout = 30 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultUploadAttempts    = 3
	DefaultUploadBackoff     = time.Second
	DefaultBackoffMultiplier = 2.0
)

// DefaultScopes is the fixed scope set requested at authorization time:
// read/write content, read profile and offline access (refresh tokens).
var DefaultScopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

// Config represents the application's configuration, loaded from a YAML file
// and overlaid with environment variables.
type Config struct {
	SDKConfig `yaml:",inline"`

	// Host is the network interface the HTTP server binds to. Empty binds all interfaces.
	Host string `yaml:"host" json:"host"`

	// Port is the HTTP server port.
	Port int `yaml:"port" json:"port" env:"PORT"`

	// Debug enables debug level logging.
	Debug bool `yaml:"debug" json:"debug" env:"DEBUG"`

	// LoggingToFile writes logs to a rotating file instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir overrides the directory used for rotating log files.
	LogDir string `yaml:"log-dir" json:"log-dir"`

	// AuthDir is where the CLI keeps its client-held token file.
	AuthDir string `yaml:"auth-dir" json:"auth-dir" env:"AUTH_DIR"`

	// AllowedOrigins is the CORS allow-list for browser clients.
	AllowedOrigins []string `yaml:"allowed-origins" json:"allowed-origins"`

	// FrontendURL is appended to AllowedOrigins when set.
	FrontendURL string `yaml:"frontend-url" json:"frontend-url" env:"FRONTEND_URL"`

	// X holds the OAuth client and endpoint settings for the X platform.
	X XConfig `yaml:"x" json:"x"`

	// Publish holds media and retry limits for the publish pipeline.
	Publish PublishConfig `yaml:"publish" json:"publish"`
}

// XConfig describes the OAuth client registration and the upstream endpoints.
type XConfig struct {
	ClientID     string   `yaml:"client-id" json:"client-id" env:"X_CLIENT_ID"`
	ClientSecret string   `yaml:"client-secret" json:"-" env:"X_CLIENT_SECRET"`
	RedirectURI  string   `yaml:"redirect-uri" json:"redirect-uri" env:"X_REDIRECT_URI"`
	Scopes       []string `yaml:"scopes" json:"scopes"`

	AuthorizeURL  string `yaml:"authorize-url" json:"authorize-url"`
	TokenURL      string `yaml:"token-url" json:"token-url"`
	RevokeURL     string `yaml:"revoke-url" json:"revoke-url"`
	APIBaseURL    string `yaml:"api-base-url" json:"api-base-url"`
	UploadURL     string `yaml:"upload-url" json:"upload-url"`
	StatusURLBase string `yaml:"status-url-base" json:"status-url-base"`

	// RequestTimeout bounds token, identity, upload and post requests.
	RequestTimeout time.Duration `yaml:"request-timeout" json:"request-timeout"`
}

// PublishConfig holds media limits and the media upload retry schedule.
type PublishConfig struct {
	MediaMaxBytes     int64         `yaml:"media-max-bytes" json:"media-max-bytes"`
	MediaFetchTimeout time.Duration `yaml:"media-fetch-timeout" json:"media-fetch-timeout"`
	Upload            RetryConfig   `yaml:"upload-retry" json:"upload-retry"`
}

// RetryConfig is the bounded exponential backoff schedule for media uploads.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max-attempts" json:"max-attempts"`
	InitialBackoff time.Duration `yaml:"initial-backoff" json:"initial-backoff"`
	Multiplier     float64       `yaml:"multiplier" json:"multiplier"`
}

// ErrMissingClientSetup is returned by Validate when the OAuth client is not configured.
var ErrMissingClientSetup = errors.New("config: x client-id and redirect-uri are required")

// LoadConfig reads the YAML configuration at configFile, applies environment
// overrides and fills defaults.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional behaves like LoadConfig but tolerates a missing or empty
// path when optional is true, returning defaults plus environment overrides.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(configFile) != "" {
		data, err := os.ReadFile(configFile)
		switch {
		case err == nil:
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case optional && errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !optional {
		return nil, fmt.Errorf("config file path is required")
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	c.AuthDir = orDefault(c.AuthDir, DefaultAuthDir)
	if c.FrontendURL != "" && !containsString(c.AllowedOrigins, c.FrontendURL) {
		c.AllowedOrigins = append(c.AllowedOrigins, c.FrontendURL)
	}

	x := &c.X
	if len(x.Scopes) == 0 {
		x.Scopes = append([]string(nil), DefaultScopes...)
	}
	x.AuthorizeURL = orDefault(x.AuthorizeURL, DefaultAuthorizeURL)
	x.TokenURL = orDefault(x.TokenURL, DefaultTokenURL)
	x.RevokeURL = orDefault(x.RevokeURL, DefaultRevokeURL)
	x.APIBaseURL = strings.TrimRight(orDefault(x.APIBaseURL, DefaultAPIBaseURL), "/")
	x.UploadURL = orDefault(x.UploadURL, DefaultUploadURL)
	x.StatusURLBase = orDefault(x.StatusURLBase, DefaultStatusURLBase)
	if x.RequestTimeout <= 0 {
		x.RequestTimeout = DefaultRequestTimeout
	}

	p := &c.Publish
	if p.MediaMaxBytes <= 0 {
		p.MediaMaxBytes = DefaultMediaMaxBytes
	}
	if p.MediaFetchTimeout <= 0 {
		p.MediaFetchTimeout = DefaultMediaFetchTimeout
	}
	if p.Upload.MaxAttempts <= 0 {
		p.Upload.MaxAttempts = DefaultUploadAttempts
	}
	if p.Upload.InitialBackoff <= 0 {
		p.Upload.InitialBackoff = DefaultUploadBackoff
	}
	if p.Upload.Multiplier < 1 {
		p.Upload.Multiplier = DefaultBackoffMultiplier
	}
}

// Validate reports whether the OAuth client setup needed for login is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.X.ClientID) == "" || strings.TrimSpace(c.X.RedirectURI) == "" {
		return ErrMissingClientSetup
	}
	return nil
}

// Default returns a configuration populated only with defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
