package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30000, // 30 seconds
		FollowRedirects: BoolPtr(true),
		MaxRedirects:    10,
		ValidateSSL:     BoolPtr(true),
		RequestID:       BoolPtr(false),
		LogLevel:        "info",
		NoColor:         BoolPtr(false),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.Timeout == defaults.Timeout &&
		c.GetFollowRedirects() == defaults.GetFollowRedirects() &&
		c.MaxRedirects == defaults.MaxRedirects &&
		c.GetValidateSSL() == defaults.GetValidateSSL() &&
		c.Proxy == defaults.Proxy &&
		c.UserAgent == defaults.UserAgent &&
		len(c.Headers) == 0 &&
		len(c.Variables) == 0 &&
		c.RateLimit == defaults.RateLimit &&
		c.GetRequestID() == defaults.GetRequestID() &&
		c.LogLevel == defaults.LogLevel &&
		c.GetNoColor() == defaults.GetNoColor() &&
		c.HistoryPath == defaults.HistoryPath
}
