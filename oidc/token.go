// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Token interface represents an OIDC id_token, as well as an Oauth2
// access_token.  It also carries the user info claims derived from either the
// verified id_token or the provider's UserInfo endpoint.
type Token interface {
	// IDToken returns the id_token, which may be empty when the provider
	// didn't return one.
	IDToken() IDToken

	// AccessToken returns the access_token.
	AccessToken() AccessToken

	// TokenType returns the access_token's type (typically "Bearer").
	TokenType() string

	// Expiry returns the expiration of the access_token.
	Expiry() time.Time

	// Scope returns the scopes granted, if the provider reported them.
	Scope() string

	// Subject returns the user's "sub" claim.
	Subject() string

	// Claims unmarshals the user info claims into the provided claims.
	Claims(claims interface{}) error

	// Valid will ensure that the access_token is not empty or expired.
	Valid() bool

	// IsExpired returns true if the token has expired.  Implementations should
	// support a time skew (perhaps TokenExpirySkew) when checking expiration.
	IsExpired(opt ...Option) bool
}

// ensure that Tk implements the Token interface
var _ Token = (*Tk)(nil)

// Tk satisfies the Token interface and represents an Oauth2 access_token, an
// optional OIDC id_token and the user info claims for the authenticated user.
type Tk struct {
	idToken    IDToken
	underlying *oauth2.Token
	claims     json.RawMessage
	subject    string

	// nowFunc is an optional function that returns the current time
	nowFunc func() time.Time
}

// NewToken creates a new Token (*Tk).  The oauth2.Token must not be nil and
// must contain an access_token.  The userInfo claims must be a JSON object
// with a non-empty "sub" claim.
func NewToken(i IDToken, t *oauth2.Token, userInfo json.RawMessage) (*Tk, error) {
	const op = "NewToken"
	if t == nil {
		return nil, fmt.Errorf("%s: oauth2 token is nil: %w", op, ErrNilParameter)
	}
	if t.AccessToken == "" {
		return nil, fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}
	var sub struct {
		Subject string `json:"sub"`
	}
	if err := json.Unmarshal(userInfo, &sub); err != nil {
		return nil, fmt.Errorf("%s: user info claims are not a json object: %s: %w", op, err, ErrInvalidParameter)
	}
	if sub.Subject == "" {
		return nil, fmt.Errorf("%s: user info claims are missing sub: %w", op, ErrInvalidParameter)
	}
	return &Tk{
		idToken:    i,
		underlying: t,
		claims:     userInfo,
		subject:    sub.Subject,
	}, nil
}

func (t *Tk) IDToken() IDToken         { return t.idToken }                              // IDToken implements the Token.IDToken() interface function.
func (t *Tk) AccessToken() AccessToken { return AccessToken(t.underlying.AccessToken) } // AccessToken implements the Token.AccessToken() interface function.
func (t *Tk) TokenType() string        { return t.underlying.Type() }                   // TokenType implements the Token.TokenType() interface function.
func (t *Tk) Expiry() time.Time        { return t.underlying.Expiry }                   // Expiry implements the Token.Expiry() interface function.
func (t *Tk) Subject() string          { return t.subject }                             // Subject implements the Token.Subject() interface function.

// Scope implements the Token.Scope() interface function.
func (t *Tk) Scope() string {
	if s, ok := t.underlying.Extra("scope").(string); ok {
		return s
	}
	return ""
}

// Claims implements the Token.Claims() interface function.
func (t *Tk) Claims(claims interface{}) error {
	const op = "Tk.Claims"
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	if err := json.Unmarshal(t.claims, claims); err != nil {
		return fmt.Errorf("%s: unable to unmarshal user info claims: %w", op, err)
	}
	return nil
}

// TokenExpirySkew defines a time skew when checking a Token's expiration.
const TokenExpirySkew = 10 * time.Second

// IsExpired will return true if the token's access token is expired.  If
// the access token's expiry is zero, it is considered not expired.  Supports
// the WithExpirySkew option, and the default skew is TokenExpirySkew.
func (t *Tk) IsExpired(opt ...Option) bool {
	opts := getTokenOpts(opt...)
	if t.underlying.Expiry.IsZero() {
		return false
	}
	return t.underlying.Expiry.Round(0).Before(t.now().Add(opts.withExpirySkew))
}

// Valid will ensure that the access_token is not empty or expired.
func (t *Tk) Valid() bool {
	if t == nil || t.underlying == nil {
		return false
	}
	if t.underlying.AccessToken == "" {
		return false
	}
	return !t.IsExpired()
}

// now returns the current time using the optional nowFunc.
func (t *Tk) now() time.Time {
	if t.nowFunc != nil {
		return t.nowFunc()
	}
	return time.Now() // fallback to this default
}

// tokenOptions is the set of available options for Token functions
type tokenOptions struct {
	withExpirySkew time.Duration
}

// tokenDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{
		withExpirySkew: TokenExpirySkew,
	}
}

// getTokenOpts gets the token defaults and applies the opt overrides passed
// in
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
