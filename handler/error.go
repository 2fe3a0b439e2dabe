// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/cap-webapp/oidc"
)

var (
	// ErrMissingParameter is returned when a required request parameter is
	// missing.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrMissingCode is returned when a callback has no authorization code.
	ErrMissingCode = fmt.Errorf("missing code: %w", ErrMissingParameter)

	// ErrMissingState is returned when a callback has no state.
	ErrMissingState = fmt.Errorf("missing state: %w", ErrMissingParameter)

	// ErrNoLoginAttempt is returned when a callback has no pending login
	// attempt to complete.
	ErrNoLoginAttempt = errors.New("no pending login attempt")

	// ErrAuthenticationDenied is returned when the provider responds to the
	// authentication request with an error.
	ErrAuthenticationDenied = errors.New("authentication denied")

	// ErrInvalidParameter is returned when a parameter is invalid.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNilParameter is returned when a required parameter is nil.
	ErrNilParameter = errors.New("nil parameter")
)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string
	Description string
	URI         string
}

func (e *AuthenErrorResponse) err() error {
	msg := e.Error
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return fmt.Errorf("provider responded with %s: %w", msg, ErrAuthenticationDenied)
}

// appHandler is a route that reports its failures instead of writing them.
type appHandler func(w http.ResponseWriter, r *http.Request) error

// handle adapts the appHandler into an http.HandlerFunc.  Errors are logged
// with their detail and the client gets only the status text.
func (h *Handler) handle(fn appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		status := statusCode(err)
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		http.Error(w, http.StatusText(status), status)
	}
}

// statusCode maps an error onto the status code the client receives.
func statusCode(err error) int {
	switch {
	case errors.Is(err, oidc.ErrUpstreamUnavailable),
		errors.Is(err, oidc.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, ErrMissingParameter):
		return http.StatusBadRequest
	case errors.Is(err, oidc.ErrStateMismatch),
		errors.Is(err, oidc.ErrExpiredState),
		errors.Is(err, oidc.ErrInvalidGrant),
		errors.Is(err, oidc.ErrIDTokenVerificationFailed),
		errors.Is(err, oidc.ErrInvalidNonce),
		errors.Is(err, oidc.ErrInvalidAudience),
		errors.Is(err, ErrNoLoginAttempt),
		errors.Is(err, ErrAuthenticationDenied):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
