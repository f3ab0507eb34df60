package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const fileName = "talentlink.yml"

// Config models talentlink.yml.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr" json:"addr"`
		BasePath    string   `yaml:"base_path" json:"base_path"`
		CORSOrigins []string `yaml:"cors_origins" json:"cors_origins,omitempty"`
	} `yaml:"server" json:"server"`
	Auth struct {
		AllowActorHeader bool `yaml:"allow_actor_header" json:"allow_actor_header"`
		DevLogin         bool `yaml:"dev_login" json:"dev_login"`
		TokenTTLMinutes  int  `yaml:"token_ttl_minutes" json:"token_ttl_minutes"`
	} `yaml:"auth" json:"auth"`
	Ledger struct {
		Currency       string   `yaml:"currency" json:"currency"`
		PaymentMethods []string `yaml:"payment_methods" json:"payment_methods,omitempty"`
	} `yaml:"ledger" json:"ledger"`
	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"log" json:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
	Billing  struct {
		Stripe StripeConfig `yaml:"stripe" json:"stripe"`
	} `yaml:"billing" json:"billing"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"-"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
}

// IsEnabled treats a missing flag as enabled.
func (w WebhookConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

type StripeConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// MetadataKey names the PaymentIntent metadata entry that carries the workspace id.
	MetadataKey string `yaml:"metadata_key" json:"metadata_key"`
}

// Load reads and validates config from the data directory.
func Load(dataDir string) (*Config, error) {
	path := Path(dataDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(dataDir string) (*Config, error) {
	data, err := os.ReadFile(Path(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if len(c.Ledger.Currency) != 3 {
		return fmt.Errorf("config.ledger.currency must be a 3-letter ISO code")
	}
	for _, m := range c.Ledger.PaymentMethods {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("config.ledger.payment_methods contains an empty method")
		}
	}
	if c.Auth.TokenTTLMinutes < 0 {
		return fmt.Errorf("config.auth.token_ttl_minutes must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format %q is not one of text, json", c.Log.Format)
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url must be an absolute http(s) URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	if c.Billing.Stripe.Enabled && strings.TrimSpace(c.Billing.Stripe.MetadataKey) == "" {
		return fmt.Errorf("config.billing.stripe.metadata_key is required when stripe is enabled")
	}
	if c.Billing.Stripe.Enabled && !c.PaymentMethodAllowed("stripe") {
		return fmt.Errorf("config.ledger.payment_methods must include stripe when stripe is enabled")
	}
	return nil
}

// PaymentMethodAllowed reports whether a method may be recorded. An empty
// allow-list accepts anything.
func (c *Config) PaymentMethodAllowed(method string) bool {
	if len(c.Ledger.PaymentMethods) == 0 || method == "" {
		return true
	}
	for _, m := range c.Ledger.PaymentMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// Path returns the config file path for a data directory.
func Path(dataDir string) string {
	if dataDir == "" {
		dataDir = "."
	}
	return filepath.Join(dataDir, fileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Unset keys keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  cors_origins: []

auth:
  # Accept X-Actor-Id without credentials. Local development only.
  allow_actor_header: false
  dev_login: false
  token_ttl_minutes: 720

ledger:
  currency: INR
  payment_methods: []

log:
  level: info
  format: text

webhooks: []

billing:
  stripe:
    enabled: false
    metadata_key: workspace_id
`
