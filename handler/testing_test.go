// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/cap-webapp/oidc"
	"github.com/hashicorp/cap-webapp/render"
	"github.com/hashicorp/cap-webapp/session"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/publicsuffix"
)

const testSecret = "a-test-secret-that-is-long-enough"

// testLogBuffer is an io.Writer that's safe to read while requests are
// still logging.
type testLogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *testLogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *testLogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testApp is the web application running against a TestProvider, along with
// a browser to drive it.
type testApp struct {
	t        *testing.T
	tp       *oidc.TestProvider
	provider *oidc.Provider
	store    *session.Store
	server   *httptest.Server
	logs     *testLogBuffer

	browser *http.Client
	idp     *http.Client
}

type testAppOptions struct {
	renderer       Renderer
	providerConfig func(tp *oidc.TestProvider) *oidc.Config
}

func startTestApp(t *testing.T, opts testAppOptions) *testApp {
	t.Helper()
	require := require.New(t)

	tp := oidc.StartTestProvider(t)
	cfg := oidc.NewConfig(tp.Addr(), "test-client-id", "test-client-secret", []oidc.Alg{oidc.ES256},
		oidc.WithProviderCA(tp.CACert()),
		oidc.WithTimeout(2*time.Second),
	)
	if opts.providerConfig != nil {
		cfg = opts.providerConfig(tp)
	}
	p, err := oidc.NewProvider(cfg)
	require.NoError(err)
	t.Cleanup(p.Done)

	logs := &testLogBuffer{}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "test-webapp",
		Level:      hclog.Trace,
		Output:     logs,
		JSONFormat: true,
	})
	store, err := session.NewStore(testSecret, session.WithSecure(false), session.WithLogger(logger))
	require.NoError(err)

	r := opts.renderer
	if r == nil {
		r, err = render.New()
		require.NoError(err)
	}
	h, err := New(logger, p, store, r)
	require.NoError(err)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &testApp{
		t:        t,
		tp:       tp,
		provider: p,
		store:    store,
		server:   srv,
		logs:     logs,
		browser: &http.Client{
			Jar: testJar(t),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Timeout: 10 * time.Second,
		},
		idp: tp.HTTPClient(),
	}
}

type testResponse struct {
	status   int
	location string
	body     string
	cookies  []*http.Cookie
}

// get requests the app's path with the browser's cookies.
func (a *testApp) get(path string) testResponse {
	a.t.Helper()
	return a.do(a.browser, a.server.URL+path)
}

func (a *testApp) do(c *http.Client, u string) testResponse {
	a.t.Helper()
	resp, err := c.Get(u)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return testResponse{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		body:     string(b),
		cookies:  resp.Cookies(),
	}
}

// authorize starts a login and follows the redirect to the provider.  It
// returns the callback URL the provider redirected the browser to.
func (a *testApp) authorize() *url.URL {
	a.t.Helper()
	require := require.New(a.t)
	resp := a.get("/login")
	require.Equal(http.StatusFound, resp.status)
	require.True(strings.HasPrefix(resp.location, a.tp.Addr()+"/authorize?"), resp.location)

	resp = a.do(a.idp, resp.location)
	require.Equal(http.StatusFound, resp.status)
	cb, err := url.Parse(resp.location)
	require.NoError(err)
	require.Equal(a.server.URL+"/callback", cb.Scheme+"://"+cb.Host+cb.Path)
	return cb
}

// login completes a login and returns the callback's response.
func (a *testApp) login() testResponse {
	a.t.Helper()
	cb := a.authorize()
	return a.get("/callback?" + cb.RawQuery)
}

// sessionCookie returns the browser's session cookie, if it has one.
func (a *testApp) sessionCookie() *http.Cookie {
	a.t.Helper()
	u, err := url.Parse(a.server.URL)
	require.NoError(a.t, err)
	for _, c := range a.browser.Jar.Cookies(u) {
		if c.Name == a.store.CookieName() {
			return c
		}
	}
	return nil
}

// testJar returns an empty cookie jar for the browser.
func testJar(t *testing.T) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	return jar
}

func testSetCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// testUnreachableIssuer returns an https issuer with nothing listening on
// it.
func testUnreachableIssuer(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	issuer := "https://" + l.Addr().String()
	require.NoError(t, l.Close())
	return issuer
}
