// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

/*
Package oidc is the relying party side of the OpenID Connect Authorization
Code Flow with PKCE.

It discovers the provider lazily (the first time a Provider is used), builds
authorization URLs carrying the attempt's state, nonce and S256 code
challenge, exchanges the returned code for tokens, verifies the id_token (or
falls back to the provider's UserInfo endpoint) and builds the provider's
logout URL.

Token endpoint failures are classified so callers can decide how to respond:

	ErrInvalidGrant         the provider rejected the code
	ErrUpstreamUnavailable  discovery, network or 5xx failures and timeouts
	ErrMalformedResponse    the provider replied with something unusable
	ErrStateMismatch        the returned state isn't the attempt's state
	ErrExpiredState         the attempt expired before the callback

Config

	NewConfig(...) *Config
	(*Config).Validate() error

Provider

	NewProvider(*Config) (*Provider, error)
	(*Provider).AuthURL(context.Context, State) (string, error)
	(*Provider).Exchange(context.Context, State, string, string) (*Tk, error)
	(*Provider).UserInfo(context.Context, oauth2.TokenSource, interface{}) error
	(*Provider).LogoutURL(string) (string, error)

State

	NewState(time.Duration, string, ...Option) (*St, error)
	RestoreState(id, nonce, verifier, redirectURL string, expiration time.Time, ...Option) (*St, error)

Testing

StartTestProvider(t) starts a local TLS provider that implements discovery,
authorize, token, jwks, userinfo and logout endpoints.  See TestProvider for
its knobs.
*/
package oidc
