// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"
)

// State represents one OIDC authentication flow for a user. It contains the
// data needed to uniquely represent that one-time flow across the multiple
// interactions needed to complete the OIDC flow the user is attempting.
//
// ID() is passed throughout the OIDC interactions to uniquely identify the
// flow's state. The ID() and Nonce() cannot be equal, and will be used during
// the OIDC flow to prevent CSRF and replay attacks (see the oidc spec for
// specifics).
type State interface {
	// ID is a unique identifier and an opaque value used to maintain state
	// between the oidc request and the callback. ID cannot equal the Nonce.
	// See https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest.
	ID() string

	// Nonce is a unique nonce and a string value used to associate a Client
	// session with an ID Token, and to mitigate replay attacks. Nonce cannot
	// equal the ID.
	// See https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
	// and https://openid.net/specs/openid-connect-core-1_0.html#NonceNotes.
	Nonce() string

	// RedirectURL is the callback URL sent with the authorization request.
	// The same value must be sent during the code exchange.
	RedirectURL() string

	// PKCEVerifier is the code verifier whose challenge was sent with the
	// authorization request.
	PKCEVerifier() CodeVerifier

	// Expiration returns the time the State expires.
	Expiration() time.Time

	// IsExpired returns true if the state has expired. Implementations should
	// support a WithExpirySkew option and if none is provided it will use
	// a default skew (perhaps DefaultStateExpirySkew)
	IsExpired(opt ...Option) bool
}

// St represents the oidc state used for oidc flows.  The St.ID() is passed
// throughout the flows to uniquely identify a specific flow's state.
type St struct {
	// id is a unique identifier and an opaque value used to maintain state
	// between the oidc request and the callback.
	id string

	// nonce is a unique nonce and suitable for use as an oidc nonce
	nonce string

	// redirectURL is the callback the provider redirects to
	redirectURL string

	// verifier is the PKCE code verifier for the attempt
	verifier CodeVerifier

	// expiration is the expiration time for the State
	expiration time.Time

	// nowFunc is an optional function that returns the current time
	nowFunc func() time.Time
}

// ensure that St implements the State interface
var _ State = (*St)(nil)

// NewState creates a new State (*St) with a new ID, Nonce and PKCE code
// verifier.
//
// Supported options: WithNow
func NewState(expireIn time.Duration, redirectURL string, opt ...Option) (*St, error) {
	const op = "oidc.NewState"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	opts := getStOpts(opt...)
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state's nonce: %w", op, err)
	}
	id, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state's id: %w", op, err)
	}
	verifier, err := NewCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state's code verifier: %w", op, err)
	}
	s := &St{
		id:          id,
		nonce:       nonce,
		redirectURL: redirectURL,
		verifier:    verifier,
		nowFunc:     opts.withNowFunc,
	}
	s.expiration = s.now().Add(expireIn)
	return s, nil
}

// RestoreState rebuilds a State that was persisted (for example in a signed
// cookie) between the authorization request and the callback.  It doesn't
// check the expiration; callers should use IsExpired() for that.
//
// Supported options: WithNow
func RestoreState(id, nonce, verifier, redirectURL string, expiration time.Time, opt ...Option) (*St, error) {
	const op = "oidc.RestoreState"
	switch {
	case id == "":
		return nil, fmt.Errorf("%s: id is empty: %w", op, ErrInvalidParameter)
	case nonce == "":
		return nil, fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	case id == nonce:
		return nil, fmt.Errorf("%s: id and nonce cannot be equal: %w", op, ErrInvalidParameter)
	case redirectURL == "":
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	case expiration.IsZero():
		return nil, fmt.Errorf("%s: expiration is zero: %w", op, ErrInvalidParameter)
	}
	v, err := restoreCodeVerifier(verifier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getStOpts(opt...)
	return &St{
		id:          id,
		nonce:       nonce,
		redirectURL: redirectURL,
		verifier:    v,
		expiration:  expiration,
		nowFunc:     opts.withNowFunc,
	}, nil
}

func (s *St) ID() string                 { return s.id }          // ID implements the State.ID() interface function.
func (s *St) Nonce() string              { return s.nonce }       // Nonce implements the State.Nonce() interface function.
func (s *St) RedirectURL() string        { return s.redirectURL } // RedirectURL implements the State.RedirectURL() interface function.
func (s *St) PKCEVerifier() CodeVerifier { return s.verifier }    // PKCEVerifier implements the State.PKCEVerifier() interface function.
func (s *St) Expiration() time.Time      { return s.expiration }  // Expiration implements the State.Expiration() interface function.

// DefaultStateExpirySkew defines a default time skew when checking a State's
// expiration.
const DefaultStateExpirySkew = 1 * time.Second

// IsExpired returns true if the state has expired. Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultStateExpirySkew.
func (s *St) IsExpired(opt ...Option) bool {
	opts := getStOpts(opt...)
	return s.expiration.Before(s.now().Add(opts.withExpirySkew))
}

// now returns the current time using the optional nowFunc.
func (s *St) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now() // fallback to this default
}

// stOptions is the set of available options for St functions
type stOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// stDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func stDefaults() stOptions {
	return stOptions{
		withExpirySkew: DefaultStateExpirySkew,
	}
}

// getStOpts gets the state defaults and applies the opt overrides passed in
func getStOpts(opt ...Option) stOptions {
	opts := stDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
