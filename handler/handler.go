// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/cap-webapp/oidc"
	"github.com/hashicorp/cap-webapp/session"
	"github.com/hashicorp/go-hclog"
)

// Log event kinds.
const (
	EventLogin        = "LOGIN"
	EventAccess       = "ACCESS"
	EventUnauthorized = "UNAUTHORIZED"
)

// Provider is the part of *oidc.Provider the routes use.
type Provider interface {
	AuthURL(ctx context.Context, s oidc.State) (string, error)
	Exchange(ctx context.Context, s oidc.State, authorizationState, authorizationCode string) (*oidc.Tk, error)
	LogoutURL(returnTo string) (string, error)
}

// Renderer renders the application's pages.
type Renderer interface {
	Home(s *session.Session) ([]byte, error)
	Protected(u *session.User) ([]byte, error)
}

// Handler serves the application's routes.  It holds no per-user state.
type Handler struct {
	logger   hclog.Logger
	provider Provider
	store    *session.Store
	renderer Renderer

	baseURL    *url.URL
	trustProxy bool
	loginTTL   time.Duration
	now        func() time.Time
}

// New creates a Handler.
//
// Supported options: WithBaseURL, WithTrustProxy, WithLoginTTL, WithNow
func New(logger hclog.Logger, p Provider, s *session.Store, r Renderer, opt ...Option) (*Handler, error) {
	const op = "handler.New"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, ErrNilParameter)
	case s == nil:
		return nil, fmt.Errorf("%s: session store is nil: %w", op, ErrNilParameter)
	case r == nil:
		return nil, fmt.Errorf("%s: renderer is nil: %w", op, ErrNilParameter)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	opts := getHandlerOpts(opt...)
	if u := opts.withBaseURL; u != nil && (u.Scheme == "" || u.Host == "") {
		return nil, fmt.Errorf("%s: base URL %q must be absolute: %w", op, u, ErrInvalidParameter)
	}
	if opts.withBaseURL == nil && s.Secure() {
		logger.Warn("no base URL is configured, callback and logout URLs will be derived from the request Host header")
	}
	return &Handler{
		logger:     logger,
		provider:   p,
		store:      s,
		renderer:   r,
		baseURL:    opts.withBaseURL,
		trustProxy: opts.withTrustProxy,
		loginTTL:   opts.withLoginTTL,
		now:        opts.withNowFunc,
	}, nil
}

// Routes returns the application's router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(h.logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/", h.handle(h.home))
	r.Get("/login", h.handle(h.login))
	r.Get("/callback", h.handle(h.callback))
	r.Get("/logout", h.handle(h.logout))
	r.Get("/protected", h.handle(h.protected))
	r.Get("/healthz", h.healthz)
	return r
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) error {
	const op = "Handler.home"
	s, _ := h.store.Get(r)
	b, err := h.renderer.Home(s)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	writeHTML(w, b)
	return nil
}

// login starts a new login attempt and redirects the browser to the
// provider.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) error {
	const op = "Handler.login"
	st, err := oidc.NewState(h.loginTTL, h.url(r, "/callback"), oidc.WithNow(h.now))
	if err != nil {
		return fmt.Errorf("%s: unable to create login attempt: %w", op, err)
	}
	authURL, err := h.provider.AuthURL(r.Context(), st)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := h.store.SetAttempt(w, st); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// callback completes a login attempt.  The attempt is consumed whether or not
// the callback succeeds, and the session is only written once every check
// has passed.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) error {
	const op = "Handler.callback"
	h.store.ClearAttempt(w)

	// get parameters from either the body or query parameters.
	// FormValue prioritizes body values, if found.
	if e := r.FormValue("error"); e != "" {
		reqError := &AuthenErrorResponse{
			Error:       e,
			Description: r.FormValue("error_description"),
			URI:         r.FormValue("error_uri"),
		}
		return fmt.Errorf("%s: %w", op, reqError.err())
	}
	reqState, reqCode := r.FormValue("state"), r.FormValue("code")
	switch {
	case reqState == "":
		return fmt.Errorf("%s: %w", op, ErrMissingState)
	case reqCode == "":
		return fmt.Errorf("%s: %w", op, ErrMissingCode)
	}

	attempt, err := h.store.Attempt(r)
	switch {
	case errors.Is(err, session.ErrExpired):
		return fmt.Errorf("%s: %s: %w", op, err, oidc.ErrExpiredState)
	case err != nil:
		return fmt.Errorf("%s: %s: %w", op, err, ErrNoLoginAttempt)
	}

	tk, err := h.provider.Exchange(r.Context(), attempt, reqState, reqCode)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	u, err := session.NewUser(tk)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, err, oidc.ErrMalformedResponse)
	}
	if err := h.store.Set(w, &session.Session{User: u}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	h.logger.Info(EventLogin,
		"sub", u.UserInfo.Subject,
		"email", u.UserInfo.Email,
		"at", h.now().UTC().Format(time.RFC3339),
	)
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// logout clears the session and sends the browser to the provider's logout
// endpoint, which returns it to the landing page.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) error {
	const op = "Handler.logout"
	h.store.Clear(w)
	u, err := h.provider.LogoutURL(h.url(r, "/"))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	http.Redirect(w, r, u, http.StatusFound)
	return nil
}

func (h *Handler) protected(w http.ResponseWriter, r *http.Request) error {
	const op = "Handler.protected"
	s, ok := h.store.Get(r)
	if !ok {
		h.logger.Warn(EventUnauthorized,
			"path", r.URL.Path,
			"at", h.now().UTC().Format(time.RFC3339),
		)
		http.Redirect(w, r, "/login", http.StatusFound)
		return nil
	}
	h.logger.Info(EventAccess,
		"path", r.URL.Path,
		"sub", s.User.UserInfo.Subject,
		"email", s.User.UserInfo.Email,
		"at", h.now().UTC().Format(time.RFC3339),
	)
	b, err := h.renderer.Protected(s.User)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	writeHTML(w, b)
	return nil
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// url returns the absolute URL for path, based on the configured base URL or
// else on the request.  X-Forwarded-Proto is only honored for a trusted
// proxy, and only when it's http or https.
func (h *Handler) url(r *http.Request, path string) string {
	if h.baseURL != nil {
		return strings.TrimSuffix(h.baseURL.String(), "/") + path
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); h.trustProxy && fwd != "" {
		switch p := strings.ToLower(strings.TrimSpace(strings.Split(fwd, ",")[0])); p {
		case "http", "https":
			scheme = p
		}
	}
	return scheme + "://" + r.Host + path
}

func writeHTML(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
}
