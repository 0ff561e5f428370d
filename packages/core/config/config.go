package config

import (
	"encoding/json"
	"fmt"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/http"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override file settings
const EnvPrefix = "REQUESTER"

// Config represents the requester configuration
type Config struct {
	// Timeout is in milliseconds
	Timeout         int    `json:"timeout,omitempty" yaml:"timeout,omitempty" split_words:"true"`
	FollowRedirects *bool  `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty" split_words:"true"`
	MaxRedirects    int    `json:"maxRedirects,omitempty" yaml:"maxRedirects,omitempty" split_words:"true"`
	ValidateSSL     *bool  `json:"validateSSL,omitempty" yaml:"validateSSL,omitempty" split_words:"true"`
	Proxy           string `json:"proxy,omitempty" yaml:"proxy,omitempty" split_words:"true"`
	UserAgent       string `json:"userAgent,omitempty" yaml:"userAgent,omitempty" split_words:"true"`
	// Headers are sent with every request; REQUESTER_HEADERS takes "Key:Value,Key2:Value2"
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" split_words:"true"`
	// RateLimit is in requests per second, 0 disables it
	RateLimit   float64 `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty" split_words:"true"`
	RequestID   *bool   `json:"requestID,omitempty" yaml:"requestID,omitempty" split_words:"true"`
	LogLevel    string  `json:"logLevel,omitempty" yaml:"logLevel,omitempty" split_words:"true"`
	NoColor     *bool   `json:"noColor,omitempty" yaml:"noColor,omitempty" split_words:"true"`
	HistoryPath string  `json:"historyPath,omitempty" yaml:"historyPath,omitempty" split_words:"true"`
	// Variables are substituted for {{name}} in URLs, headers and bodies
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

func (c *Config) GetRequestID() bool {
	return getBool(c.RequestID, false)
}

func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// TimeoutDuration returns the timeout as a time.Duration
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// ConfigFilenames contains the possible config file names, in search order
var ConfigFilenames = []string{
	".requester.json",
	"requester.json",
	".requester.yaml",
	".requester.yml",
}

// LoadConfig loads configuration from the specified path or searches the
// current directory, then applies REQUESTER_* environment overrides
func LoadConfig(path string) (*Config, error) {
	var cfg *Config
	var err error
	if path != "" {
		cfg, err = loadConfigFromFile(path)
	} else {
		cfg, err = FindAndLoadConfig(".")
	}
	if err != nil {
		return nil, err
	}

	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	cfg = cfg.Merge(env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file. YAML is
// used for .yaml and .yml files, JSON otherwise.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return config, nil
}

// LoadEnv reads REQUESTER_* environment variables. Unset variables leave
// the corresponding fields at their zero value so Merge ignores them.
func LoadEnv() (*Config, error) {
	var c Config
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &c, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.UserAgent != "" {
		result.UserAgent = other.UserAgent
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.LogLevel != "" {
		result.LogLevel = other.LogLevel
	}
	if other.HistoryPath != "" {
		result.HistoryPath = other.HistoryPath
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.RequestID != nil {
		result.RequestID = other.RequestID
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	// Merge headers
	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(c.Headers)+len(other.Headers))
		for k, v := range c.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	if len(other.Variables) > 0 {
		vars := make(map[string]string, len(c.Variables)+len(other.Variables))
		for k, v := range c.Variables {
			vars[k] = v
		}
		for k, v := range other.Variables {
			vars[k] = v
		}
		result.Variables = vars
	}

	return &result
}

// Validate checks values that would otherwise fail at request time
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %d", c.Timeout)
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("maxRedirects must not be negative: %d", c.MaxRedirects)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rateLimit must not be negative: %v", c.RateLimit)
	}
	if c.Proxy != "" {
		if _, err := neturl.Parse(c.Proxy); err != nil {
			return fmt.Errorf("invalid proxy: %w", err)
		}
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid logLevel: %w", err)
		}
	}
	return nil
}

// Settings converts the configuration into requester settings
func (c *Config) Settings() http.Settings {
	s := http.DefaultSettings()
	if c.Timeout > 0 {
		s.Timeout = c.TimeoutDuration()
	}
	if c.MaxRedirects > 0 {
		s.MaxRedirects = c.MaxRedirects
	}
	s.FollowRedirects = c.GetFollowRedirects()
	s.ValidateSSL = c.GetValidateSSL()
	s.Proxy = c.Proxy
	s.UserAgent = c.UserAgent
	s.RateLimit = c.RateLimit
	s.RequestID = c.GetRequestID()
	for k, v := range c.Headers {
		s.DefaultHeaders[k] = v
	}
	return s
}

// ClientOptions returns the options that build a requester from this config
func (c *Config) ClientOptions() []http.ClientOption {
	return []http.ClientOption{http.WithSettings(c.Settings())}
}

// Level returns the configured log level, defaulting to info
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

// SaveConfig saves the configuration to a file, as YAML for .yaml and
// .yml paths and JSON otherwise
func (c *Config) SaveConfig(path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
