// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrInvalidIssuer              = errors.New("invalid issuer")
	ErrIDGeneratorFailed          = errors.New("id generation failed")
	ErrExpiredState               = errors.New("state is expired")
	ErrStateMismatch              = errors.New("response state does not match")
	ErrIDTokenVerificationFailed  = errors.New("id_token verification failed")
	ErrInvalidAudience            = errors.New("invalid audience")
	ErrInvalidNonce               = errors.New("invalid nonce")
	ErrUserInfoFailed             = errors.New("user info failed")
	ErrUnsupportedAlg             = errors.New("unsupported signing algorithm")
	ErrUnsupportedChallengeMethod = errors.New("unsupported PKCE challenge method")

	// ErrUpstreamUnavailable is returned when the provider can't be reached,
	// times out or answers with a server error.
	ErrUpstreamUnavailable = errors.New("provider unavailable")

	// ErrInvalidGrant is returned when the provider rejects an authorization
	// code (expired, reused, issued to someone else, etc).
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrMalformedResponse is returned when a provider response can't be
	// parsed or is missing required fields.
	ErrMalformedResponse = errors.New("malformed provider response")
)
