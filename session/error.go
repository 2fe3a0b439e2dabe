// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package session

import "errors"

var (
	// ErrInvalidParameter is returned when a parameter is invalid.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNilParameter is returned when a required parameter is nil.
	ErrNilParameter = errors.New("nil parameter")

	// ErrNotFound is returned when a cookie isn't part of the request.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSignature is returned when a cookie's JWS can't be verified.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrExpired is returned when a cookie's payload has expired.
	ErrExpired = errors.New("expired")

	// ErrTooLarge is returned when an encoded cookie is larger than
	// MaxCookieSize.
	ErrTooLarge = errors.New("cookie too large")

	// ErrMalformed is returned when a cookie's payload can't be decoded.
	ErrMalformed = errors.New("malformed")
)
