// Package config loads the YAML run configuration for batch signing: log
// level, digest algorithm, optional timestamp authority, signer entries and
// a form fill map.
package config

import (
	"crypto"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError reports an invalid configuration value and the key it was
// found under.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// Config is the root of the run configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`

	// Digest is the digest algorithm name used for signing.
	Digest string `yaml:"digest"`

	// TSA is the optional timestamp authority.
	TSA TSAConfig `yaml:"tsa"`

	// Signers are the available signers, matched against form fields by id
	// or group.
	Signers []SignerConfig `yaml:"signers"`

	// Fill maps form field names to values filled before signing.
	Fill map[string]string `yaml:"fill"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// TSAConfig contains timestamp authority configuration.
type TSAConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SignerConfig describes one signer: its matching identity and the key
// material on disk, either PEM cert/key/chain paths or a PKCS#12 bundle.
type SignerConfig struct {
	ID    string `yaml:"id"`
	Group string `yaml:"group"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`

	// Image is the path to a signature appearance image.
	Image string `yaml:"image"`

	Certificate string `yaml:"cert"`
	Key         string `yaml:"key"`
	Chain       string `yaml:"chain"`

	PKCS12   string `yaml:"p12"`
	Password string `yaml:"password"`
}

var digestNames = map[string]crypto.Hash{
	"sha1":   crypto.SHA1,
	"sha256": crypto.SHA256,
	"sha384": crypto.SHA384,
	"sha512": crypto.SHA512,
}

var logLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads a YAML configuration file, applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML data, applies defaults and validates
// it.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SetDefaults fills unset fields with their defaults.
func (c *Config) SetDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Digest == "" {
		c.Digest = "sha256"
	}
}

// Validate checks the configuration and returns a ConfigError naming the
// first offending key.
func (c *Config) Validate() error {
	if !logLevels[c.Logging.Level] {
		return NewConfigError("logging.level",
			fmt.Sprintf("unknown level %q", c.Logging.Level))
	}
	if _, ok := digestNames[strings.ToLower(c.Digest)]; !ok {
		return NewConfigError("digest",
			fmt.Sprintf("unknown digest algorithm %q", c.Digest))
	}
	if c.TSA.URL == "" && (c.TSA.Username != "" || c.TSA.Password != "") {
		return NewConfigError("tsa.url", "required when tsa credentials are set")
	}

	ids := make(map[string]bool)
	groups := make(map[string]bool)
	for i := range c.Signers {
		if err := c.Signers[i].validate(i); err != nil {
			return err
		}
		if ids[c.Signers[i].ID] {
			return NewConfigError(fmt.Sprintf("signers[%d].id", i),
				fmt.Sprintf("duplicate id %q", c.Signers[i].ID))
		}
		ids[c.Signers[i].ID] = true
		if group := c.Signers[i].Group; group != "" {
			if groups[group] {
				return NewConfigError(fmt.Sprintf("signers[%d].group", i),
					fmt.Sprintf("duplicate group %q", group))
			}
			groups[group] = true
		}
	}
	return nil
}

func (s *SignerConfig) validate(i int) error {
	field := func(name string) string {
		return fmt.Sprintf("signers[%d].%s", i, name)
	}

	if s.ID == "" {
		return NewConfigError(field("id"), "required field is missing")
	}
	if s.PKCS12 != "" {
		if s.Certificate != "" || s.Key != "" || s.Chain != "" {
			return NewConfigError(field("p12"),
				"cannot be combined with cert, key or chain")
		}
		return nil
	}
	if s.Certificate == "" {
		return NewConfigError(field("cert"),
			"required field is missing (set cert and key, or p12)")
	}
	if s.Key == "" {
		return NewConfigError(field("key"),
			"required field is missing (set cert and key, or p12)")
	}
	if s.Password != "" {
		return NewConfigError(field("password"), "only valid with p12")
	}
	return nil
}

// DigestByName maps a digest algorithm name onto a crypto.Hash.
func DigestByName(name string) (crypto.Hash, bool) {
	hash, ok := digestNames[strings.ToLower(name)]
	return hash, ok
}

// DigestAlgorithm maps the configured digest name onto a crypto.Hash.
func (c *Config) DigestAlgorithm() crypto.Hash {
	hash, _ := DigestByName(c.Digest)
	return hash
}

// Debug reports whether debug logging is configured.
func (c *Config) Debug() bool {
	return c.Logging.Level == "debug"
}
