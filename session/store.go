// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/cap-webapp/oidc"
	"github.com/hashicorp/go-hclog"
)

// MaxCookieSize is the largest Set-Cookie value, name and attributes
// included, that browsers are required to store.  Larger cookies are dropped
// by the browser without notice, so the Store refuses to write them.
const MaxCookieSize = 4096

// Store reads and writes the session and login attempt cookies.  It keeps no
// state of its own beyond its keys, so it's safe for concurrent use.
type Store struct {
	session *codec
	attempt *codec

	secure        bool
	maxAge        time.Duration
	attemptMaxAge time.Duration
	cookieName    string
	path          string
	now           func() time.Time
	logger        hclog.Logger
}

// NewStore creates a Store whose cookie keys are derived from secret, which
// must not be empty.
//
// Supported options: WithSecure, WithMaxAge, WithAttemptMaxAge,
// WithCookieName, WithPath, WithNow, WithLogger
func NewStore(secret string, opt ...Option) (*Store, error) {
	const op = "session.NewStore"
	if secret == "" {
		return nil, fmt.Errorf("%s: secret is empty: %w", op, ErrInvalidParameter)
	}
	sc, err := newCodec([]byte(secret), sessionKeyLabel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ac, err := newCodec([]byte(secret), attemptKeyLabel)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getStoreOpts(opt...)
	return &Store{
		session:       sc,
		attempt:       ac,
		secure:        opts.withSecure,
		maxAge:        opts.withMaxAge,
		attemptMaxAge: opts.withAttemptMaxAge,
		cookieName:    opts.withCookieName,
		path:          opts.withPath,
		now:           opts.withNowFunc,
		logger:        opts.withLogger,
	}, nil
}

// CookieName returns the name of the session cookie.
func (s *Store) CookieName() string { return s.cookieName }

// Secure returns true when the Store's cookies are only sent over HTTPS.
func (s *Store) Secure() bool { return s.secure }

// AttemptCookieName returns the name of the login attempt cookie.
func (s *Store) AttemptCookieName() string { return s.cookieName + "_attempt" }

// sessionPayload is the private claim set of a session cookie.
type sessionPayload struct {
	User *User `json:"user"`
}

// Get returns the request's session.  It returns false when the request has
// no session cookie, or when the cookie doesn't verify, has expired, can't
// be decoded, carries no user or carries an expired access token.  A rejected cookie is never partially
// trusted.
func (s *Store) Get(r *http.Request) (*Session, bool) {
	const op = "Store.Get"
	raw, err := s.cookieValue(r, s.cookieName)
	if err != nil {
		return nil, false
	}
	var p sessionPayload
	if err := s.session.decode(raw, s.now(), &p); err != nil {
		s.logger.Debug("rejected session cookie", "op", op, "error", err)
		return nil, false
	}
	if !p.User.Valid() {
		s.logger.Debug("rejected session cookie", "op", op, "error", "user is missing a subject")
		return nil, false
	}
	if p.User.Expired(s.now()) {
		s.logger.Debug("rejected session cookie", "op", op, "error", "access token has expired")
		return nil, false
	}
	return &Session{User: p.User}, true
}

// Set writes the session cookie, replacing any existing session.
func (s *Store) Set(w http.ResponseWriter, sess *Session) error {
	const op = "Store.Set"
	switch {
	case w == nil:
		return fmt.Errorf("%s: response writer is nil: %w", op, ErrNilParameter)
	case sess == nil:
		return fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	case !sess.User.Valid():
		return fmt.Errorf("%s: session user is missing a subject: %w", op, ErrInvalidParameter)
	}
	raw, err := s.session.encode(sessionPayload{User: sess.User}, s.now(), s.maxAge)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := setCookie(w, s.cookie(s.cookieName, raw, s.maxAge)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Clear expires the session cookie.
func (s *Store) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(s.cookieName, "", -1))
}

// attemptPayload is the private claim set of a login attempt cookie.
type attemptPayload struct {
	Attempt struct {
		ID          string    `json:"id"`
		Nonce       string    `json:"nonce"`
		Verifier    string    `json:"verifier"`
		RedirectURL string    `json:"redirect_url"`
		Expiration  time.Time `json:"expiration"`
	} `json:"attempt"`
}

// SetAttempt writes the pending login attempt cookie.  The cookie lives no
// longer than the attempt itself.
func (s *Store) SetAttempt(w http.ResponseWriter, st oidc.State) error {
	const op = "Store.SetAttempt"
	switch {
	case w == nil:
		return fmt.Errorf("%s: response writer is nil: %w", op, ErrNilParameter)
	case st == nil:
		return fmt.Errorf("%s: state is nil: %w", op, ErrNilParameter)
	case st.PKCEVerifier() == nil:
		return fmt.Errorf("%s: state code verifier is nil: %w", op, ErrInvalidParameter)
	}
	var p attemptPayload
	p.Attempt.ID = st.ID()
	p.Attempt.Nonce = st.Nonce()
	p.Attempt.Verifier = st.PKCEVerifier().Verifier()
	p.Attempt.RedirectURL = st.RedirectURL()
	p.Attempt.Expiration = st.Expiration()

	ttl := s.attemptMaxAge
	if until := st.Expiration().Sub(s.now()); until > 0 && until < ttl {
		ttl = until
	}
	raw, err := s.attempt.encode(p, s.now(), ttl)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := setCookie(w, s.cookie(s.AttemptCookieName(), raw, ttl)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Attempt returns the request's pending login attempt.  The error is
// ErrNotFound when there is no attempt cookie, otherwise one of
// ErrInvalidSignature, ErrExpired or ErrMalformed.
func (s *Store) Attempt(r *http.Request) (oidc.State, error) {
	const op = "Store.Attempt"
	raw, err := s.cookieValue(r, s.AttemptCookieName())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var p attemptPayload
	if err := s.attempt.decode(raw, s.now(), &p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a := p.Attempt
	st, err := oidc.RestoreState(a.ID, a.Nonce, a.Verifier, a.RedirectURL, a.Expiration, oidc.WithNow(s.now))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to restore state: %s: %w", op, err, ErrMalformed)
	}
	return st, nil
}

// ClearAttempt expires the login attempt cookie.
func (s *Store) ClearAttempt(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(s.AttemptCookieName(), "", -1))
}

func (s *Store) cookieValue(r *http.Request, name string) (string, error) {
	const op = "Store.cookieValue"
	if r == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	c, err := r.Cookie(name)
	switch {
	case errors.Is(err, http.ErrNoCookie):
		return "", fmt.Errorf("%s: no %s cookie: %w", op, name, ErrNotFound)
	case err != nil:
		return "", fmt.Errorf("%s: %s: %w", op, err, ErrMalformed)
	case c.Value == "":
		return "", fmt.Errorf("%s: empty %s cookie: %w", op, name, ErrNotFound)
	}
	return c.Value, nil
}

// setCookie adds the Set-Cookie header, unless the cookie is larger than
// MaxCookieSize.
func setCookie(w http.ResponseWriter, c *http.Cookie) error {
	const op = "session.setCookie"
	if n := len(c.String()); n > MaxCookieSize {
		return fmt.Errorf("%s: %s cookie is %d bytes, limit is %d: %w", op, c.Name, n, MaxCookieSize, ErrTooLarge)
	}
	http.SetCookie(w, c)
	return nil
}

// cookie returns an HttpOnly, SameSite=Lax cookie.  A negative maxAge deletes
// the cookie.
func (s *Store) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.path,
		Secure:   s.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	switch {
	case maxAge < 0:
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	default:
		c.MaxAge = int(maxAge.Seconds())
	}
	return c
}
