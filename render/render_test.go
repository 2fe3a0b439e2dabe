// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package render

import (
	"bytes"
	"encoding/json"
	"html/template"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/cap-webapp/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func testUser() *session.User {
	return &session.User{
		AccessToken: "test-access-token",
		IDToken:     "test-id-token",
		TokenType:   "Bearer",
		Expiry:      time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		Scope:       "openid profile email",
		UserInfo: session.UserInfo{
			Subject: "auth0|alice",
			Email:   "alice@example.com",
			Name:    "Alice <Doe>",
		},
	}
}

func testParse(t *testing.T, b []byte) *html.Node {
	t.Helper()
	root, err := html.Parse(bytes.NewReader(b))
	require.NoError(t, err)
	return root
}

func testText(t *testing.T, root *html.Node, id string) string {
	t.Helper()
	n, ok := scrape.Find(root, scrape.ById(id))
	require.Truef(t, ok, "missing element with id %q", id)
	return scrape.Text(n)
}

func TestRenderer_Home(t *testing.T) {
	t.Parallel()
	r, err := New()
	require.NoError(t, err)

	t.Run("anonymous", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		for _, s := range []*session.Session{nil, {}} {
			b, err := r.Home(s)
			require.NoError(err)
			root := testParse(t, b)
			assert.Equal("Welcome Guest", testText(t, root, "welcome"))
			_, ok := scrape.Find(root, scrape.ById("login"))
			assert.True(ok)
			_, ok = scrape.Find(root, scrape.ById("session"))
			assert.False(ok)
			_, ok = scrape.Find(root, scrape.ById("logout"))
			assert.False(ok)
		}
	})
	t.Run("authenticated", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		u := testUser()
		b, err := r.Home(&session.Session{User: u})
		require.NoError(err)
		assert.NotContains(string(b), "<Doe>")

		root := testParse(t, b)
		assert.Equal("Welcome Alice <Doe>!", testText(t, root, "welcome"))
		_, ok := scrape.Find(root, scrape.ById("logout"))
		assert.True(ok)

		var got session.User
		require.NoError(json.Unmarshal([]byte(testText(t, root, "session")), &got))
		assert.Equal(*u, got)
	})
}

func TestRenderer_Protected(t *testing.T) {
	t.Parallel()
	r, err := New()
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		b, err := r.Protected(testUser())
		require.NoError(err)
		root := testParse(t, b)
		assert.Equal("auth0|alice", testText(t, root, "subject"))
		assert.Equal("alice@example.com", testText(t, root, "email"))
		assert.Contains(testText(t, root, "tokens"), "test-access-token")

		links := scrape.FindAll(root, scrape.ByTag(atom.A))
		var hrefs []string
		for _, l := range links {
			hrefs = append(hrefs, scrape.Attr(l, "href"))
		}
		assert.Contains(hrefs, "/logout")
	})
	t.Run("invalid-user", func(t *testing.T) {
		assert := assert.New(t)
		for _, u := range []*session.User{nil, {AccessToken: "at"}} {
			b, err := r.Protected(u)
			assert.ErrorIs(err, ErrInvalidUser)
			assert.Nil(b)
		}
	})
}

func TestRenderer_execute(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	// a template that fails half way through must not produce any output
	r := &Renderer{templates: template.Must(template.New("broken.html").Parse(`<p>partial</p>{{.Missing.Field}}`))}
	b, err := r.execute("broken.html", struct{}{})
	assert.Error(err)
	assert.Nil(b)

	_, err = r.execute("nope.html", nil)
	assert.Error(err)
	assert.False(strings.Contains(err.Error(), "test-access-token"))
}
