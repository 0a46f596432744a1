package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "TALLY"
	defaultAPIBaseURL      = "http://localhost:30000/api/v1"
	defaultAPITimeout      = 10 * time.Second
	defaultCredentialsPath = "tally.db"
	defaultProfile         = "default"
	defaultLogLevel        = "info"
	defaultLogFormat       = "console"
	defaultChallengeToken  = "dev-challenge"
	defaultStubAddress     = "127.0.0.1:30000"
	defaultStubSeed        = 23
)

// AppConfig captures runtime configuration for the CLI and the stub server.
type AppConfig struct {
	APIBaseURL        string
	APITimeout        time.Duration
	CredentialsPath   string
	Profile           string
	LogLevel          string
	LogFormat         string
	ChallengeToken    string
	StubAddress       string
	StubSigningSecret string
	StubSeed          int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("api.timeout", defaultAPITimeout)
	configViper.SetDefault("credentials.path", defaultCredentialsPath)
	configViper.SetDefault("credentials.profile", defaultProfile)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("challenge.token", defaultChallengeToken)
	configViper.SetDefault("stub.address", defaultStubAddress)
	configViper.SetDefault("stub.seed", defaultStubSeed)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		APIBaseURL:        strings.TrimSpace(configViper.GetString("api.base_url")),
		APITimeout:        configViper.GetDuration("api.timeout"),
		CredentialsPath:   strings.TrimSpace(configViper.GetString("credentials.path")),
		Profile:           strings.TrimSpace(configViper.GetString("credentials.profile")),
		LogLevel:          configViper.GetString("log.level"),
		LogFormat:         configViper.GetString("log.format"),
		ChallengeToken:    configViper.GetString("challenge.token"),
		StubAddress:       strings.TrimSpace(configViper.GetString("stub.address")),
		StubSigningSecret: configViper.GetString("stub.signing_secret"),
		StubSeed:          configViper.GetInt("stub.seed"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	parsed, err := url.Parse(c.APIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute url: %q", c.APIBaseURL)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.CredentialsPath == "" {
		return fmt.Errorf("credentials.path is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console: %q", c.LogFormat)
	}
	return nil
}

// ValidateStub checks the settings only the stub server needs.
func (c AppConfig) ValidateStub() error {
	if strings.TrimSpace(c.StubSigningSecret) == "" {
		return fmt.Errorf("stub.signing_secret is required")
	}
	if c.StubAddress == "" {
		return fmt.Errorf("stub.address is required")
	}
	if c.StubSeed < 0 {
		return fmt.Errorf("stub.seed must not be negative")
	}
	return nil
}
