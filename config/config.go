// Package config loads the mailer configuration from a YAML file and
// MAILER_* environment variables.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/alexisbouchez/mailer.go/smtpclient"
)

// EnvPrefix prefixes every environment override, e.g. MAILER_SMTP_AUTH_PASSWORD
// for smtp.auth.password.
const EnvPrefix = "MAILER"

// AuthConfig holds SMTP credentials. Password may instead come from the
// keyring entry named by KeyringKey.
type AuthConfig struct {
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
	KeyringKey string `mapstructure:"keyring_key" yaml:"keyring_key"`
}

// SMTPConfig describes the server connection.
type SMTPConfig struct {
	Hostname           string        `mapstructure:"hostname" yaml:"hostname"`
	Port               int           `mapstructure:"port" yaml:"port"`
	TLS                bool          `mapstructure:"tls" yaml:"tls"`
	LocalName          string        `mapstructure:"local_name" yaml:"local_name"`
	AllowInsecure      bool          `mapstructure:"allow_insecure" yaml:"allow_insecure"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DrainLimit         int           `mapstructure:"drain_limit" yaml:"drain_limit"`
	Auth               AuthConfig    `mapstructure:"auth" yaml:"auth"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "json" or "console".
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the top-level configuration.
type Config struct {
	SMTP    SMTPConfig    `mapstructure:"smtp" yaml:"smtp"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// envKeys are bound explicitly so that Unmarshal sees environment values
// for keys absent from the file.
var envKeys = []string{
	"smtp.hostname",
	"smtp.port",
	"smtp.tls",
	"smtp.local_name",
	"smtp.allow_insecure",
	"smtp.insecure_skip_verify",
	"smtp.timeout",
	"smtp.drain_limit",
	"smtp.auth.username",
	"smtp.auth.password",
	"smtp.auth.keyring_key",
	"logging.level",
	"logging.format",
}

// Load reads configuration from the YAML file at path, if it exists, and
// applies MAILER_* environment overrides. An empty path reads only the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.timeout", 30*time.Second)
	v.SetDefault("smtp.drain_limit", smtpclient.DefaultDrainLimit)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// SecretLookup fetches a secret by key, e.g. (*credential.Store).Get.
type SecretLookup func(key string) (string, error)

// ResolvePassword fills an empty password from the keyring entry named by
// smtp.auth.keyring_key.
func (c *Config) ResolvePassword(lookup SecretLookup) error {
	a := &c.SMTP.Auth
	if a.Password != "" || a.KeyringKey == "" {
		return nil
	}
	pw, err := lookup(a.KeyringKey)
	if err != nil {
		return fmt.Errorf("resolving smtp password: %w", err)
	}
	a.Password = pw
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	s := c.SMTP
	if s.Hostname == "" {
		return errors.New("config: smtp.hostname is required")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("config: smtp.port %d out of range", s.Port)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("config: smtp.timeout %s is negative", s.Timeout)
	}
	if s.DrainLimit < 0 {
		return fmt.Errorf("config: smtp.drain_limit %d is negative", s.DrainLimit)
	}
	a := s.Auth
	if a.Username == "" && (a.Password != "" || a.KeyringKey != "") {
		return errors.New("config: smtp.auth.username is required with a password")
	}
	if a.Username != "" && a.Password == "" && a.KeyringKey == "" {
		return errors.New("config: smtp.auth needs a password or keyring_key")
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config: unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// ClientConfig converts the SMTP section for smtpclient.New.
func (c *Config) ClientConfig() smtpclient.Config {
	s := c.SMTP
	cc := smtpclient.Config{
		Hostname:      s.Hostname,
		Port:          s.Port,
		TLS:           s.TLS,
		LocalName:     s.LocalName,
		AllowInsecure: s.AllowInsecure,
	}
	if s.Auth.Username != "" {
		cc.Auth = &smtpclient.Credentials{Username: s.Auth.Username, Password: s.Auth.Password}
	}
	return cc
}

// ClientOptions returns the smtpclient options implied by the SMTP section.
func (c *Config) ClientOptions() []smtpclient.Option {
	s := c.SMTP
	var opts []smtpclient.Option
	if s.Timeout > 0 {
		opts = append(opts, smtpclient.WithTimeout(s.Timeout))
	}
	if s.DrainLimit > 0 {
		opts = append(opts, smtpclient.WithDrainLimit(s.DrainLimit))
	}
	if s.InsecureSkipVerify {
		opts = append(opts, smtpclient.WithTLSConfig(&tls.Config{
			ServerName:         s.Hostname,
			InsecureSkipVerify: true,
		}))
	}
	return opts
}
