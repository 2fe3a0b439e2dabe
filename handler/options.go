// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"net/url"
	"time"
)

// DefaultLoginTTL is the default lifetime of a login attempt.
const DefaultLoginTTL = 5 * time.Minute

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

// handlerOptions is the set of available options for a Handler.
type handlerOptions struct {
	withBaseURL    *url.URL
	withLoginTTL   time.Duration
	withNowFunc    func() time.Time
	withTrustProxy bool
}

func handlerDefaults() handlerOptions {
	return handlerOptions{
		withLoginTTL: DefaultLoginTTL,
		withNowFunc:  time.Now,
	}
}

func getHandlerOpts(opt ...Option) handlerOptions {
	opts := handlerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithBaseURL sets the application's external URL, used to build the
// callback and logout return URLs.  Without it they're derived from each
// request.
func WithBaseURL(u *url.URL) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withBaseURL = u
		}
	}
}

// WithTrustProxy makes the Handler honor the X-Forwarded-For, X-Real-IP and
// X-Forwarded-Proto headers.  Only use it behind a proxy that sets them.
func WithTrustProxy(trust bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withTrustProxy = trust
		}
	}
}

// WithLoginTTL sets how long a user has to complete a login.  Non-positive
// values are ignored.
func WithLoginTTL(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok && d > 0 {
			o.withLoginTTL = d
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}
