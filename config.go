package ersatz

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Protocol selects plain HTTP or TLS.
type Protocol string

const (
	// HTTP serves plain-text HTTP.
	HTTP Protocol = "http"
	// HTTPS serves TLS with a self-signed certificate unless one is given.
	HTTPS Protocol = "https"
)

// TLSOptions configures the HTTPS listener.
type TLSOptions struct {
	MinVersion         uint16            `yaml:"-"`
	Certificates       []tls.Certificate `yaml:"-"`
	ClientCAs          *x509.CertPool    `yaml:"-"`
	RequireClientCert  bool              `yaml:"require_client_cert"`
	SkipClientVerify   bool              `yaml:"skip_client_verify"`
	// InsecureSkipVerify makes DefaultClient skip server certificate checks.
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify"`
}

// AuthConfig declares an authentication pre-filter.
type AuthConfig struct {
	// Type is "basic", "digest" or empty for none.
	Type     string `yaml:"type"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// JournalConfig controls the request journal.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`
	// DSN of the sqlite database; empty selects a private in-memory database.
	DSN string `yaml:"dsn"`
}

// Config holds the mock server configuration.
type Config struct {
	Protocol               Protocol      `yaml:"protocol"`
	TLSConfig              *TLSOptions   `yaml:"tls"`
	UnmatchedStatusCode    int           `yaml:"unmatched_status_code"`
	UnmatchedStatusMessage string        `yaml:"unmatched_status_message"`
	LogUnmatched           bool          `yaml:"log_unmatched"`
	MaxBodySize            int64         `yaml:"max_body_size"`
	VerboseLogging         bool          `yaml:"verbose_logging"`
	VerifyTimeout          time.Duration `yaml:"verify_timeout"`
	PollInterval           time.Duration `yaml:"poll_interval"`
	Auth                   AuthConfig    `yaml:"auth"`
	Journal                JournalConfig `yaml:"journal"`
	Log                    LogConfig     `yaml:"log"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Protocol:               HTTP,
		UnmatchedStatusCode:    http.StatusNotFound,
		UnmatchedStatusMessage: "404: Not Found",
		LogUnmatched:           true,
		MaxBodySize:            10 << 20, // 10MB
		VerboseLogging:         false,
		VerifyTimeout:          DefaultVerifyTimeout,
		PollInterval:           DefaultPollInterval,
		Journal:                JournalConfig{Enabled: true},
		Log:                    LogConfig{Level: "info", Console: true},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// authenticator builds the pre-filter declared by the auth section.
func (c AuthConfig) authenticator() (Authenticator, error) {
	switch c.Type {
	case "":
		return nil, nil
	case "basic":
		return BasicAuth(c.Username, c.Password), nil
	case "digest":
		return DigestAuth(c.Username, c.Password), nil
	}
	return nil, fmt.Errorf("unknown auth type %q", c.Type)
}
