// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hashicorp/cap-webapp/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewUser(t *testing.T) {
	t.Parallel()
	expiry := time.Now().Add(time.Hour)
	testToken := func(t *testing.T, claims string) oidc.Token {
		t.Helper()
		ot := (&oauth2.Token{
			AccessToken: "test-access-token",
			TokenType:   "Bearer",
			Expiry:      expiry,
		}).WithExtra(map[string]interface{}{"scope": "openid email"})
		tk, err := oidc.NewToken("test-id-token", ot, json.RawMessage(claims))
		require.NoError(t, err)
		return tk
	}

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := NewUser(testToken(t, `{"sub":"auth0|alice","email":"alice@example.com","email_verified":true,"name":"Alice","nonce":"n"}`))
		require.NoError(err)
		assert.Equal(&User{
			AccessToken: "test-access-token",
			IDToken:     "test-id-token",
			TokenType:   "Bearer",
			Expiry:      expiry,
			Scope:       "openid email",
			UserInfo: UserInfo{
				Subject:       "auth0|alice",
				Email:         "alice@example.com",
				EmailVerified: true,
				Name:          "Alice",
			},
		}, got)
		assert.True(got.Valid())
		assert.True((&Session{User: got}).Authenticated())
	})
	t.Run("nil-token", func(t *testing.T) {
		_, err := NewUser(nil)
		assert.ErrorIs(t, err, ErrNilParameter)
	})
	t.Run("expired-access-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ot := &oauth2.Token{AccessToken: "test-access-token", Expiry: time.Now().Add(-time.Minute)}
		tk, err := oidc.NewToken("", ot, json.RawMessage(`{"sub":"auth0|alice"}`))
		require.NoError(err)
		_, err = NewUser(tk)
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("claims-of-the-wrong-shape", func(t *testing.T) {
		_, err := NewUser(testToken(t, `{"sub":"auth0|alice","email_verified":"yes"}`))
		assert.Error(t, err)
	})
}

func TestSession_Authenticated(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		session *Session
		want    bool
	}{
		{name: "nil", session: nil, want: false},
		{name: "anonymous", session: &Session{}, want: false},
		{name: "no-subject", session: &Session{User: &User{AccessToken: "at"}}, want: false},
		{name: "user", session: &Session{User: testUser()}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.Authenticated())
		})
	}
}

func TestUser_Expired(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		user *User
		want bool
	}{
		{name: "nil", user: nil, want: false},
		{name: "no-expiry", user: &User{}, want: false},
		{name: "before", user: &User{Expiry: now.Add(time.Second)}, want: false},
		{name: "at", user: &User{Expiry: now}, want: true},
		{name: "after", user: &User{Expiry: now.Add(-time.Second)}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.Expired(now))
		})
	}
}
