// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// TestProvider is a local TLS server that supports test provider capabilities
// which make writing tests much easier.  It serves the endpoints a relying
// party needs for the authorization code flow: discovery, authorize, token,
// jwks, userinfo and logout.
//
// Much of this is from Consul's oauthtest package with a few changes so it
// could become part of this package's public testing API.  A big thanks to the
// original contributors to Consul's oauthtest package.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	signingKey *TestSigningKey

	t *testing.T

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}
	expectedAuthCode    string
	codeUsed            bool
	customClaims        map[string]interface{}
	customAudience      string
	idTokenNonce        string
	omitIDToken         bool
	disableUserInfo     bool
	responseDelay       time.Duration
	rawTokenResponse    *testRawResponse
	lastAuthRequest     url.Values
	issuedAccessToken   string
	discoveryRequests   int
}

type testRawResponse struct {
	statusCode  int
	contentType string
	body        string
}

// StartTestProvider creates a disposable TestProvider, which is stopped when
// the test and all its subtests complete.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:                t,
		clientID:         "test-client-id",
		clientSecret:     "test-client-secret",
		expectedAuthCode: "test-auth-code",
		replySubject:     "auth0|alice",
		replyUserinfo: map[string]interface{}{
			"email":          "alice@example.com",
			"email_verified": true,
			"name":           "Alice Doe",
			"nickname":       "alice",
			"picture":        "https://example.com/alice.png",
		},
	}
	p.signingKey = NewTestSigningKey(t)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.  Defaults are "test-client-id" and "test-client-secret"
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// ClientCreds returns the relying party client information required for the
// OIDC workflows.
func (p *TestProvider) ClientCreds() (clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID, p.clientSecret
}

// SetExpectedAuthCode configures the auth code to return from /authorize and
// the allowed auth code for /oauth/token.  Codes can only be exchanged once;
// setting the code again allows another exchange.  An empty code makes
// /authorize deny every request.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
	p.codeUsed = false
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs for
// the OIDC workflow. If not configured every redirect URI is allowed.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetSubject configures the "sub" claim of issued id_tokens and userinfo
// replies.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetUserInfoReply configures the claims (other than "sub") returned from
// /userinfo and embedded in issued id_tokens.
func (p *TestProvider) SetUserInfoReply(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = claims
}

// SetCustomClaims lets you set claims to return in the JWT issued by the OIDC
// workflow.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures what audience value to embed in the JWT issued
// by the OIDC workflow.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetIDTokenNonce overrides the nonce embedded in issued id_tokens.  By
// default the nonce from the last /authorize request is used.
func (p *TestProvider) SetIDTokenNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenNonce = nonce
}

// OmitIDTokens forces the /oauth/token endpoint to not return an id_token,
// so relying parties have to use the /userinfo endpoint.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// DisableUserInfo makes the userinfo endpoint return 404 and omits it from the
// discovery config.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// SetResponseDelay makes every endpoint wait before replying, which is handy
// for testing timeouts.
func (p *TestProvider) SetResponseDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responseDelay = d
}

// SetRawTokenResponse replaces the /oauth/token reply with the given status
// code, content type and body.  A zero statusCode restores normal replies.
func (p *TestProvider) SetRawTokenResponse(statusCode int, contentType, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if statusCode == 0 {
		p.rawTokenResponse = nil
		return
	}
	p.rawTokenResponse = &testRawResponse{statusCode: statusCode, contentType: contentType, body: body}
}

// DiscoveryRequests returns how many discovery requests the provider has
// received, including ones still waiting on a response delay.
func (p *TestProvider) DiscoveryRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discoveryRequests
}

// LastAuthRequest returns the query parameters of the last /authorize request.
func (p *TestProvider) LastAuthRequest() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAuthRequest
}

// Addr returns the current base URL for the test provider's running webserver,
// which is also the provider's issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http.Client for the test provider which trusts its
// CA and doesn't follow redirects, which allows a test to play the part of
// the browser.
func (p *TestProvider) HTTPClient() *http.Client {
	c := p.httpServer.Client()
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

func (p *TestProvider) redirectAllowed(uri string) bool {
	if len(p.allowedRedirectURIs) == 0 {
		return true
	}
	for _, u := range p.allowedRedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// clientAuthenticated checks the client creds sent using either http basic
// auth or the request body.
func (p *TestProvider) clientAuthenticated(req *http.Request) bool {
	id, secret, ok := req.BasicAuth()
	if ok {
		id, _ = url.QueryUnescape(id)
		secret, _ = url.QueryUnescape(secret)
	} else {
		id, secret = req.FormValue("client_id"), req.FormValue("client_secret")
	}
	return id == p.clientID && secret == p.clientSecret
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	delay := p.responseDelay
	if req.URL.Path == "/.well-known/openid-configuration" {
		p.discoveryRequests++
	}
	p.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-req.Context().Done():
			return
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		reply := struct {
			Issuer           string   `json:"issuer"`
			AuthEndpoint     string   `json:"authorization_endpoint"`
			TokenEndpoint    string   `json:"token_endpoint"`
			JWKSURI          string   `json:"jwks_uri"`
			UserinfoEndpoint string   `json:"userinfo_endpoint,omitempty"`
			SigningAlgs      []string `json:"id_token_signing_alg_values_supported"`
			ChallengeMethods []string `json:"code_challenge_methods_supported"`
		}{
			Issuer:           p.Addr(),
			AuthEndpoint:     p.Addr() + "/authorize",
			TokenEndpoint:    p.Addr() + "/oauth/token",
			JWKSURI:          p.Addr() + "/.well-known/jwks.json",
			UserinfoEndpoint: p.Addr() + "/userinfo",
			SigningAlgs:      []string{string(ES256)},
			ChallengeMethods: []string{string(S256)},
		}
		if p.disableUserInfo {
			reply.UserinfoEndpoint = ""
		}

		_ = p.writeJSON(w, &reply)

	case "/authorize":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		qv := req.URL.Query()
		p.lastAuthRequest = qv

		redirectURI := qv.Get("redirect_uri")
		switch {
		case redirectURI == "":
			w.WriteHeader(http.StatusBadRequest)
			return
		case !p.redirectAllowed(redirectURI):
			w.WriteHeader(http.StatusBadRequest)
			return
		case qv.Get("response_type") != "code":
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		case qv.Get("client_id") != p.clientID:
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "unknown client_id")
			return
		case !strings.Contains(" "+qv.Get("scope")+" ", " openid "):
			p.writeAuthErrorResponse(w, req, "invalid_scope", "")
			return
		case qv.Get("state") == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		case qv.Get("code_challenge") != "" && qv.Get("code_challenge_method") != string(S256):
			p.writeAuthErrorResponse(w, req, "invalid_request", "unsupported code_challenge_method")
			return
		case p.expectedAuthCode == "":
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}

		redirectURI += "?state=" + url.QueryEscape(qv.Get("state")) +
			"&code=" + url.QueryEscape(p.expectedAuthCode)

		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/.well-known/jwks.json":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.signingKey.JWKS())

	case "/oauth/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if p.rawTokenResponse != nil {
			w.Header().Set("Content-Type", p.rawTokenResponse.contentType)
			w.WriteHeader(p.rawTokenResponse.statusCode)
			_, _ = w.Write([]byte(p.rawTokenResponse.body))
			return
		}

		authReq := p.lastAuthRequest
		switch {
		case req.FormValue("grant_type") != "authorization_code":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case !p.clientAuthenticated(req):
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "bad client credentials")
			return
		case !p.redirectAllowed(req.FormValue("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case authReq != nil && authReq.Get("redirect_uri") != req.FormValue("redirect_uri"):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match")
			return
		case p.expectedAuthCode == "" || req.FormValue("code") != p.expectedAuthCode || p.codeUsed:
			_ = p.writeTokenErrorResponse(w, http.StatusForbidden, "invalid_grant", "unexpected auth code")
			return
		case authReq != nil && authReq.Get("code_challenge") != "" &&
			oauth2.S256ChallengeFromVerifier(req.FormValue("code_verifier")) != authReq.Get("code_challenge"):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match")
			return
		}
		p.codeUsed = true

		nonce := p.idTokenNonce
		if nonce == "" && authReq != nil {
			nonce = authReq.Get("nonce")
		}
		claims := TestIDTokenClaims{
			Issuer:   p.Addr(),
			Subject:  p.replySubject,
			Audience: []string{p.clientID},
			Nonce:    nonce,
			UserInfo: p.replyUserinfo,
			Custom:   p.customClaims,
		}
		if p.customAudience != "" {
			claims.Audience = []string{p.customAudience}
		}

		accessToken, err := NewID(WithPrefix("at"))
		require.NoError(p.t, err)
		p.issuedAccessToken = accessToken

		reply := struct {
			AccessToken string `json:"access_token"`
			IDToken     string `json:"id_token,omitempty"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int    `json:"expires_in"`
			Scope       string `json:"scope,omitempty"`
		}{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   3600,
		}
		if authReq != nil {
			reply.Scope = authReq.Get("scope")
		}
		if !p.omitIDToken {
			reply.IDToken = p.signingKey.SignIDToken(p.t, claims)
		}
		_ = p.writeJSON(w, &reply)

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if p.issuedAccessToken == "" || req.Header.Get("Authorization") != "Bearer "+p.issuedAccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply := map[string]interface{}{}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		if p.replySubject != "" {
			reply["sub"] = p.replySubject
		}
		_ = p.writeJSON(w, reply)

	case "/v2/logout":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		if qv.Get("client_id") != p.clientID || qv.Get("returnTo") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		http.Redirect(w, req, qv.Get("returnTo"), http.StatusFound)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
