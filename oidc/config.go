// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/text/language"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// DefaultScopes are requested of the provider when WithScopes isn't used.
var DefaultScopes = []string{oidc.ScopeOpenID, "profile", "email"}

// DefaultTimeout bounds every request made to the provider when WithTimeout
// isn't used.
const DefaultTimeout = 10 * time.Second

// DefaultLogoutPath is appended to the issuer to build the provider's logout
// endpoint when WithLogoutURL isn't used.
const DefaultLogoutPath = "v2/logout"

// Config represents the configuration for an OIDC relying party using the
// authorization code flow.  A Config is immutable once it's handed to a
// Provider.
type Config struct {
	// ClientID is the relying party ID.
	ClientID string

	// ClientSecret is the relying party secret.
	ClientSecret ClientSecret

	// Scopes is a list of oidc scopes to request of the provider. The
	// required "openid" scope is always requested.
	Scopes []string

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.  The discovery document is
	// fetched from <Issuer>/.well-known/openid-configuration
	Issuer string

	// SupportedSigningAlgs is a list of supported signing algorithms for the
	// provider's id_tokens.
	SupportedSigningAlgs []Alg

	// Audiences is an optional list of case-sensitive strings accepted in
	// an id_token's "aud" claim, in addition to the ClientID.
	Audiences []string

	// ProviderCA is an optional CA certs (PEM encoded) to use when sending
	// requests to the provider.
	ProviderCA string

	// LogoutURL is the provider's logout endpoint.  It defaults to
	// <Issuer>/v2/logout
	LogoutURL string

	// Timeout bounds every request made to the provider.
	Timeout time.Duration

	// UILocales are the end-user's preferred languages for the provider's
	// hosted login UI.
	UILocales []language.Tag

	// Logger is an optional logger.
	Logger hclog.Logger
}

// NewConfig composes a new config for a provider.  The config is not
// validated; the Provider validates it the first time it's used, so an
// incomplete registration surfaces as a request time error.
//
// Supported options:
//
//   - WithScopes
//   - WithAudiences
//   - WithProviderCA
//   - WithLogoutURL
//   - WithTimeout
//   - WithUILocales
//   - WithLogger
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, supported []Alg, opt ...Option) *Config {
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:               issuer,
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		SupportedSigningAlgs: supported,
		Scopes:               opts.withScopes,
		Audiences:            opts.withAudiences,
		ProviderCA:           opts.withProviderCA,
		LogoutURL:            opts.withLogoutURL,
		Timeout:              opts.withTimeout,
		UILocales:            opts.withUILocales,
		Logger:               opts.withLogger,
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	if len(c.SupportedSigningAlgs) == 0 {
		c.SupportedSigningAlgs = []Alg{RS256}
	}
	if c.LogoutURL == "" && c.Issuer != "" {
		c.LogoutURL = strings.TrimSuffix(c.Issuer, "/") + "/" + DefaultLogoutPath
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	return c
}

// Validate the provider configuration.  Among other validations, it verifies
// the issuer is not empty, but it doesn't verify the Issuer is discoverable
// via an http request.  Every problem is reported, not just the first one.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var errs *multierror.Error
	if c.ClientID == "" {
		errs = multierror.Append(errs, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		errs = multierror.Append(errs, fmt.Errorf("%s: client secret is empty: %w", op, ErrInvalidParameter))
	}
	switch {
	case c.Issuer == "":
		errs = multierror.Append(errs, fmt.Errorf("%s: discovery URL is empty: %w", op, ErrInvalidParameter))
	default:
		u, err := url.Parse(c.Issuer)
		switch {
		case err != nil:
			errs = multierror.Append(errs, fmt.Errorf("%s: issuer %s is invalid (%s): %w", op, c.Issuer, err, ErrInvalidIssuer))
		case u.Scheme != "https" && u.Scheme != "http":
			errs = multierror.Append(errs, fmt.Errorf("%s: issuer %s scheme is not http or https: %w", op, c.Issuer, ErrInvalidIssuer))
		case u.Host == "":
			errs = multierror.Append(errs, fmt.Errorf("%s: issuer %s has no host: %w", op, c.Issuer, ErrInvalidIssuer))
		}
	}
	if len(c.SupportedSigningAlgs) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("%s: supported algorithms is empty: %w", op, ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			errs = multierror.Append(errs, fmt.Errorf("%s: unsupported algorithm %q: %w", op, a, ErrUnsupportedAlg))
		}
	}
	if c.ProviderCA != "" {
		if ok := x509.NewCertPool().AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			errs = multierror.Append(errs, fmt.Errorf("%s: could not parse CA PEM value successfully: %w", op, ErrInvalidCACert))
		}
	}
	return errs.ErrorOrNil()
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured.  The client uses a pooled go-cleanhttp transport, the
// optional ProviderCA and the configured Timeout.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value successfully: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
	}
	return &http.Client{
		Transport: tr,
		Timeout:   c.Timeout,
	}, nil
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// configOptions is the set of available options
type configOptions struct {
	withScopes     []string
	withAudiences  []string
	withProviderCA string
	withLogoutURL  string
	withTimeout    time.Duration
	withUILocales  []language.Tag
	withLogger     hclog.Logger
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes for the provider's config.
// The "openid" scope is always requested, even if it's not in the list.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithAudiences provides an optional list of audiences for the provider's config.
func WithAudiences(auds ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudiences = auds
		}
	}
}

// WithProviderCA provides an optional CA certs (PEM encoded) for the
// provider's config.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithLogoutURL provides an optional logout endpoint for the provider's config.
func WithLogoutURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogoutURL = u
		}
	}
}

// WithTimeout provides an optional timeout for requests made to the provider.
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTimeout = d
		}
	}
}

// WithUILocales provides optional end-user preferred languages for the
// provider's hosted login UI.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withUILocales = locales
		}
	}
}

// WithLogger provides an optional logger for the provider's config.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogger = l
		}
	}
}
