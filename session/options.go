// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultCookieName is the default name of the session cookie.  The login
	// attempt cookie uses the same name with an "_attempt" suffix.
	DefaultCookieName = "session"

	// DefaultMaxAge is the default lifetime of a session.
	DefaultMaxAge = 24 * time.Hour

	// DefaultAttemptMaxAge is the default lifetime of a pending login attempt.
	DefaultAttemptMaxAge = 5 * time.Minute
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// storeOptions is the set of available options for a Store.
type storeOptions struct {
	withSecure        bool
	withMaxAge        time.Duration
	withAttemptMaxAge time.Duration
	withCookieName    string
	withPath          string
	withNowFunc       func() time.Time
	withLogger        hclog.Logger
}

// storeDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func storeDefaults() storeOptions {
	return storeOptions{
		withSecure:        true,
		withMaxAge:        DefaultMaxAge,
		withAttemptMaxAge: DefaultAttemptMaxAge,
		withCookieName:    DefaultCookieName,
		withPath:          "/",
		withNowFunc:       time.Now,
		withLogger:        hclog.NewNullLogger(),
	}
}

// getStoreOpts gets the store defaults and applies the opt overrides passed
// in.
func getStoreOpts(opt ...Option) storeOptions {
	opts := storeDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithSecure sets the Secure attribute of the cookies.  It defaults to true
// and should only be disabled when serving over plain http (local
// development).
func WithSecure(secure bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok {
			o.withSecure = secure
		}
	}
}

// WithMaxAge sets the lifetime of a session.  Non-positive values are
// ignored.
func WithMaxAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && d > 0 {
			o.withMaxAge = d
		}
	}
}

// WithAttemptMaxAge sets the lifetime of a pending login attempt.
// Non-positive values are ignored.
func WithAttemptMaxAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && d > 0 {
			o.withAttemptMaxAge = d
		}
	}
}

// WithCookieName sets the name of the session cookie.
func WithCookieName(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && name != "" {
			o.withCookieName = name
		}
	}
}

// WithPath sets the Path attribute of the cookies.
func WithPath(p string) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && p != "" {
			o.withPath = p
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}

// WithLogger provides an optional logger for rejected cookies.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}
