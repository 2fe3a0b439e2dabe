// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// Package config loads the web application's configuration from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/cap-webapp/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

// RedactedSecretKey is the redacted string or json for a secret key
const RedactedSecretKey = "[REDACTED: secret key]"

// SecretKey is the application secret the cookie keys are derived from.
// Its String and MarshalJSON are redacted.
type SecretKey string

// String will redact the secret key.
func (k SecretKey) String() string {
	return RedactedSecretKey
}

// MarshalJSON will redact the secret key.
func (k SecretKey) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, RedactedSecretKey)), nil
}

// Config is the web application's configuration.
type Config struct {
	// SecretKey signs the session and login attempt cookies.
	SecretKey SecretKey `env:"APP_SECRET_KEY"`

	// Domain is the Auth0 tenant domain. The issuer defaults to
	// https://<Domain>/ when Issuer isn't set.
	Domain       string            `env:"AUTH0_DOMAIN"`
	ClientID     string            `env:"AUTH0_CLIENT_ID"`
	ClientSecret oidc.ClientSecret `env:"AUTH0_CLIENT_SECRET"`

	Port int `env:"PORT" envDefault:"3000"`

	Issuer      string   `env:"OIDC_ISSUER"`
	LogoutURL   string   `env:"OIDC_LOGOUT_URL"`
	ProviderCA  string   `env:"OIDC_PROVIDER_CA"`
	SigningAlgs []string `env:"OIDC_SIGNING_ALGS" envSeparator:"," envDefault:"RS256"`
	UILocales   []string `env:"OIDC_UI_LOCALES" envSeparator:","`

	BaseURL         string        `env:"APP_BASE_URL"`
	ProviderTimeout time.Duration `env:"APP_PROVIDER_TIMEOUT" envDefault:"10s"`
	SessionTTL      time.Duration `env:"APP_SESSION_TTL" envDefault:"24h"`
	LoginTTL        time.Duration `env:"APP_LOGIN_TTL" envDefault:"5m"`
	CookieSecure    bool          `env:"APP_COOKIE_SECURE" envDefault:"true"`
	TrustProxy      bool          `env:"APP_TRUST_PROXY"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`
	LogJSON  bool   `env:"LOG_JSON"`
}

// Load reads the configuration.  Variables already set in the environment
// win over the ones in the .env files, and missing .env files are ignored.
// Load doesn't validate the configuration, see Config.Validate.
//
// Supported options: WithEnvFiles, WithEnvironment
func Load(opt ...Option) (*Config, error) {
	const op = "config.Load"
	opts := getLoadOpts(opt...)

	var c Config
	envOpts := env.Options{}
	switch {
	case opts.withEnvironment != nil:
		envOpts.Environment = opts.withEnvironment
	default:
		for _, f := range opts.withEnvFiles {
			if err := godotenv.Load(f); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("%s: unable to load %s: %w", op, f, err)
			}
		}
	}
	if err := env.ParseWithOptions(&c, envOpts); err != nil {
		return nil, fmt.Errorf("%s: unable to parse environment: %w", op, err)
	}
	return &c, nil
}

// Validate checks the settings the application needs before it can start.
// The provider registration isn't checked here, it's checked the first time
// the provider is used.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	var result *multierror.Error
	if c.SecretKey == "" {
		result = multierror.Append(result, fmt.Errorf("APP_SECRET_KEY is empty: %w", ErrInvalidParameter))
	}
	if c.Port < 1 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("PORT %d is out of range: %w", c.Port, ErrInvalidParameter))
	}
	for name, d := range map[string]time.Duration{
		"APP_PROVIDER_TIMEOUT": c.ProviderTimeout,
		"APP_SESSION_TTL":      c.SessionTTL,
		"APP_LOGIN_TTL":        c.LoginTTL,
	} {
		if d <= 0 {
			result = multierror.Append(result, fmt.Errorf("%s must be positive: %w", name, ErrInvalidParameter))
		}
	}
	if _, err := c.BaseURLValue(); err != nil {
		result = multierror.Append(result, err)
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		result = multierror.Append(result, fmt.Errorf("LOG_LEVEL %q is unknown: %w", c.LogLevel, ErrInvalidParameter))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Addr returns the address to listen on.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// IssuerURL returns the provider's issuer: Issuer when it's set, otherwise
// the Auth0 domain's.
func (c *Config) IssuerURL() string {
	switch {
	case c.Issuer != "":
		return c.Issuer
	case c.Domain == "":
		return ""
	case strings.HasPrefix(c.Domain, "https://"), strings.HasPrefix(c.Domain, "http://"):
		return strings.TrimSuffix(c.Domain, "/") + "/"
	default:
		return "https://" + strings.TrimSuffix(c.Domain, "/") + "/"
	}
}

// BaseURLValue returns the parsed BaseURL, which is nil when it isn't set.
func (c *Config) BaseURLValue() (*url.URL, error) {
	const op = "Config.BaseURLValue"
	if c.BaseURL == "" {
		return nil, nil
	}
	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil:
		return nil, fmt.Errorf("%s: APP_BASE_URL is invalid: %s: %w", op, err, ErrInvalidParameter)
	case u.Scheme == "" || u.Host == "":
		return nil, fmt.Errorf("%s: APP_BASE_URL %q must be an absolute URL: %w", op, c.BaseURL, ErrInvalidParameter)
	}
	return u, nil
}

// ProviderConfig returns the provider registration.  OIDC_PROVIDER_CA may
// be either a PEM encoded certificate or the path to one.
func (c *Config) ProviderConfig(logger hclog.Logger) (*oidc.Config, error) {
	const op = "Config.ProviderConfig"
	algs := make([]oidc.Alg, 0, len(c.SigningAlgs))
	for _, a := range c.SigningAlgs {
		if a = strings.TrimSpace(a); a != "" {
			algs = append(algs, oidc.Alg(a))
		}
	}
	locales := make([]language.Tag, 0, len(c.UILocales))
	for _, l := range c.UILocales {
		if l = strings.TrimSpace(l); l == "" {
			continue
		}
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("%s: OIDC_UI_LOCALES %q is invalid: %s: %w", op, l, err, ErrInvalidParameter)
		}
		locales = append(locales, tag)
	}
	ca := c.ProviderCA
	if ca != "" && !strings.Contains(ca, "-----BEGIN") {
		b, err := os.ReadFile(ca)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read OIDC_PROVIDER_CA: %w", op, err)
		}
		ca = string(b)
	}

	opts := []oidc.Option{
		oidc.WithTimeout(c.ProviderTimeout),
		oidc.WithLogger(logger),
	}
	if ca != "" {
		opts = append(opts, oidc.WithProviderCA(ca))
	}
	if c.LogoutURL != "" {
		opts = append(opts, oidc.WithLogoutURL(c.LogoutURL))
	}
	if len(locales) > 0 {
		opts = append(opts, oidc.WithUILocales(locales...))
	}
	return oidc.NewConfig(c.IssuerURL(), c.ClientID, c.ClientSecret, algs, opts...), nil
}

// LoggerOptions returns the options for the application's root logger.
func (c *Config) LoggerOptions(name string) *hclog.LoggerOptions {
	level := hclog.LevelFromString(c.LogLevel)
	if level == hclog.NoLevel {
		level = hclog.Debug
	}
	return &hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		JSONFormat: c.LogJSON,
	}
}
