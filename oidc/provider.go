// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Provider provides integration with an OIDC provider using the typical
// 3-legged OIDC authorization code flow.
//
// The provider's discovery document is fetched the first time it's needed
// and is cached for the lifetime of the Provider.  A failed discovery is not
// cached, so the next call will try again.  Concurrent callers share one
// discovery request, and each waits no longer than the config's Timeout.
type Provider struct {
	config *Config

	mu        sync.RWMutex
	provider  *oidc.Provider
	client    *http.Client
	discovery singleflight.Group
}

// NewProvider creates a Provider for the OIDC authorization code flow.  No
// requests are made to the provider's issuer until the Provider is used, and
// the config isn't validated until then either.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	return &Provider{
		config: c,
	}, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
}

type discovered struct {
	provider *oidc.Provider
	client   *http.Client
}

// discover returns the cached go-oidc provider, fetching the issuer's
// discovery document if it hasn't been fetched yet.
func (p *Provider) discover(ctx context.Context) (*oidc.Provider, *http.Client, error) {
	const op = "Provider.discover"
	if d, ok := p.cached(); ok {
		return d.provider, d.client, nil
	}
	ch := p.discovery.DoChan("discover", p.fetch)

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()
	select {
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("%s: waiting for discovery of %s: %s: %w", op, p.config.Issuer, ctx.Err(), ErrUpstreamUnavailable)
	case res := <-ch:
		if res.Err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, res.Err)
		}
		d := res.Val.(discovered)
		return d.provider, d.client, nil
	}
}

func (p *Provider) cached() (discovered, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return discovered{provider: p.provider, client: p.client}, p.provider != nil
}

// fetch makes the discovery request.  It isn't bound to any one caller's
// context, since its result is shared with every caller waiting on it.
func (p *Provider) fetch() (interface{}, error) {
	const op = "Provider.fetch"
	if d, ok := p.cached(); ok {
		return d, nil
	}
	if err := p.config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	client, err := p.config.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
	defer cancel()
	provider, err := oidc.NewProvider(HTTPClientContext(ctx, client), p.config.Issuer) // makes http req to issuer for discovery
	if err != nil {
		return nil, fmt.Errorf("%s: unable to discover provider %s: %s: %w", op, p.config.Issuer, err, ErrUpstreamUnavailable)
	}
	p.config.Logger.Debug("discovered provider", "issuer", p.config.Issuer, "authorization_endpoint", provider.Endpoint().AuthURL)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.provider = provider
	p.client = client
	return discovered{provider: provider, client: client}, nil
}

// oauth2Config returns an OpenID Connect aware OAuth2 client config.
func (p *Provider) oauth2Config(provider *oidc.Provider, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  redirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       p.scopes(),
	}
}

// scopes returns the configured scopes, with the "openid" scope (which is
// required for oidc flows) first and without duplicates.
func (p *Provider) scopes() []string {
	scopes := []string{oidc.ScopeOpenID}
	for _, s := range p.config.Scopes {
		if s == oidc.ScopeOpenID || s == "" {
			continue
		}
		scopes = append(scopes, s)
	}
	return scopes
}

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with an IdP.  The State's RedirectURL is the URL the
// IdP should use as a redirect after the authentication/authorization is
// completed by the user.  The URL carries the State's ID as the "state"
// parameter, its nonce and its PKCE code challenge.
//
// See NewState() to create an oidc flow State with a valid ID and Nonce that
// will uniquely identify the user's authentication attempt through out the flow.
func (p *Provider) AuthURL(ctx context.Context, s State) (string, error) {
	const op = "Provider.AuthURL"
	if s == nil {
		return "", fmt.Errorf("%s: state is nil: %w", op, ErrNilParameter)
	}
	if s.ID() == s.Nonce() {
		return "", fmt.Errorf("%s: state id and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	if s.RedirectURL() == "" {
		return "", fmt.Errorf("%s: state redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	if s.PKCEVerifier() == nil {
		return "", fmt.Errorf("%s: state code verifier is nil: %w", op, ErrInvalidParameter)
	}
	if s.IsExpired() {
		return "", fmt.Errorf("%s: state is expired: %w", op, ErrExpiredState)
	}
	provider, _, err := p.discover(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(s.Nonce()),
		oauth2.SetAuthURLParam("code_challenge", s.PKCEVerifier().Challenge()),
		oauth2.SetAuthURLParam("code_challenge_method", string(s.PKCEVerifier().Method())),
	}
	if len(p.config.UILocales) > 0 {
		locales := make([]string, 0, len(p.config.UILocales))
		for _, l := range p.config.UILocales {
			locales = append(locales, l.String())
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", strings.Join(locales, " ")))
	}
	return p.oauth2Config(provider, s.RedirectURL()).AuthCodeURL(s.ID(), authCodeOpts...), nil
}

// Exchange will request a token from the oidc token endpoint, using the
// authorizationCode and authorizationState it received in an earlier
// successful oidc authentication response.
//
// It will also validate the authorizationState it receives against the
// existing State for the user's oidc authentication flow.
//
// On success, the Token returned will include an AccessToken and, when the
// provider returns one, a verified IDToken.  The token's user info claims come
// from the verified id_token, or from the provider's UserInfo endpoint when
// no id_token was returned.
func (p *Provider) Exchange(ctx context.Context, s State, authorizationState string, authorizationCode string) (*Tk, error) {
	const op = "Provider.Exchange"
	switch {
	case s == nil:
		return nil, fmt.Errorf("%s: state is nil: %w", op, ErrNilParameter)
	case authorizationState == "":
		return nil, fmt.Errorf("%s: authorization state is empty: %w", op, ErrStateMismatch)
	case s.ID() != authorizationState:
		return nil, fmt.Errorf("%s: authentication state and authorization state are not equal: %w", op, ErrStateMismatch)
	case s.IsExpired():
		return nil, fmt.Errorf("%s: authentication state is expired: %w", op, ErrExpiredState)
	case authorizationCode == "":
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	case s.PKCEVerifier() == nil:
		return nil, fmt.Errorf("%s: state code verifier is nil: %w", op, ErrInvalidParameter)
	}
	provider, client, err := p.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()
	oidcCtx := HTTPClientContext(ctx, client)

	oauth2Token, err := p.oauth2Config(provider, s.RedirectURL()).Exchange(
		oidcCtx,
		authorizationCode,
		oauth2.SetAuthURLParam("code_verifier", s.PKCEVerifier().Verifier()),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %s: %w", op, err, classifyExchangeError(err))
	}

	var claims json.RawMessage
	idToken, _ := oauth2Token.Extra("id_token").(string)
	switch {
	case idToken != "":
		claims, err = p.verifyIDToken(oidcCtx, provider, IDToken(idToken), s.Nonce())
		if err != nil {
			return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
		}
	default:
		if err := p.UserInfo(ctx, oauth2.StaticTokenSource(oauth2Token), &claims); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	t, err := NewToken(IDToken(idToken), oauth2Token, claims)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create new token: %s: %w", op, err, ErrMalformedResponse)
	}
	return t, nil
}

// classifyExchangeError maps a token endpoint failure onto ErrInvalidGrant,
// ErrUpstreamUnavailable or ErrMalformedResponse.
func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			return ErrUpstreamUnavailable
		}
		return ErrInvalidGrant
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrUpstreamUnavailable
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return ErrUpstreamUnavailable
	}
	// the provider answered, but oauth2 couldn't make sense of the response
	return ErrMalformedResponse
}

// UserInfo gets the UserInfo claims from the provider using the token produced
// by the tokenSource.  Exchange uses it when the provider doesn't return an
// id_token.
func (p *Provider) UserInfo(ctx context.Context, tokenSource oauth2.TokenSource, claims interface{}) error {
	const op = "Provider.UserInfo"
	if tokenSource == nil {
		return fmt.Errorf("%s: token source is nil: %w", op, ErrNilParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	provider, client, err := p.discover(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	userinfo, err := provider.UserInfo(HTTPClientContext(ctx, client), tokenSource)
	if err != nil {
		return fmt.Errorf("%s: provider UserInfo request failed: %s: %w: %w", op, err, ErrUserInfoFailed, ErrUpstreamUnavailable)
	}
	if err := userinfo.Claims(claims); err != nil {
		return fmt.Errorf("%s: failed to get UserInfo claims: %s: %w", op, err, ErrMalformedResponse)
	}
	return nil
}

// verifyIDToken verifies the id_token signature, nonce and audiences and
// returns its claims.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) verifyIDToken(ctx context.Context, provider *oidc.Provider, t IDToken, nonce string) (json.RawMessage, error) {
	const op = "Provider.verifyIDToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if nonce == "" {
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	algs := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	oidcConfig := &oidc.Config{
		SupportedSigningAlgs: algs,
		ClientID:             p.config.ClientID,
		// the additional audiences are checked below
		SkipClientIDCheck: len(p.config.Audiences) > 0,
	}
	oidcIDToken, err := provider.Verifier(oidcConfig).Verify(ctx, string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: invalid id_token: %s: %w", op, err, ErrIDTokenVerificationFailed)
	}
	if oidcIDToken.Nonce != nonce {
		return nil, fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}
	if len(p.config.Audiences) > 0 && !audienceAllowed(oidcIDToken.Audience, append([]string{p.config.ClientID}, p.config.Audiences...)) {
		return nil, fmt.Errorf("%s: invalid id_token audiences: %w", op, ErrInvalidAudience)
	}

	var claims json.RawMessage
	if err := oidcIDToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to get id_token claims: %s: %w", op, err, ErrMalformedResponse)
	}
	return claims, nil
}

func audienceAllowed(got []string, allowed []string) bool {
	for _, a := range allowed {
		for _, g := range got {
			if a == g {
				return true
			}
		}
	}
	return false
}

// LogoutURL will generate the provider's logout URL, which ends the user's
// session with the provider and then redirects the browser to returnTo.  No
// requests are made to the provider.
func (p *Provider) LogoutURL(returnTo string) (string, error) {
	const op = "Provider.LogoutURL"
	if p.config.LogoutURL == "" {
		return "", fmt.Errorf("%s: logout URL is empty: %w", op, ErrInvalidParameter)
	}
	if returnTo == "" {
		return "", fmt.Errorf("%s: return to URL is empty: %w", op, ErrInvalidParameter)
	}
	u, err := url.Parse(p.config.LogoutURL)
	if err != nil {
		return "", fmt.Errorf("%s: logout URL %s is invalid: %s: %w", op, p.config.LogoutURL, err, ErrInvalidParameter)
	}
	q := u.Query()
	q.Set("returnTo", returnTo)
	q.Set("client_id", p.config.ClientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
