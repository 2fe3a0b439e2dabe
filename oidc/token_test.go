// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewToken(t *testing.T) {
	t.Parallel()
	testUnderlying := &oauth2.Token{
		AccessToken: "access_token",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(1 * time.Hour),
	}
	testClaims := json.RawMessage(`{"sub":"alice","email":"alice@example.com"}`)
	tests := []struct {
		name       string
		idToken    IDToken
		underlying *oauth2.Token
		claims     json.RawMessage
		wantErr    error
	}{
		{name: "valid", idToken: "id_token", underlying: testUnderlying, claims: testClaims},
		{name: "valid-no-id_token", underlying: testUnderlying, claims: testClaims},
		{name: "nil-underlying", claims: testClaims, wantErr: ErrNilParameter},
		{name: "empty-access_token", underlying: &oauth2.Token{}, claims: testClaims, wantErr: ErrInvalidParameter},
		{name: "missing-sub", underlying: testUnderlying, claims: json.RawMessage(`{"email":"alice@example.com"}`), wantErr: ErrInvalidParameter},
		{name: "not-json", underlying: testUnderlying, claims: json.RawMessage(`not-json`), wantErr: ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewToken(tt.idToken, tt.underlying, tt.claims)
			if tt.wantErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErr)
				return
			}
			require.NoError(err)
			assert.Equal(tt.idToken, got.IDToken())
			assert.Equal(AccessToken(tt.underlying.AccessToken), got.AccessToken())
			assert.Equal("Bearer", got.TokenType())
			assert.Equal("alice", got.Subject())
			assert.True(got.Valid())

			var claims map[string]interface{}
			require.NoError(got.Claims(&claims))
			assert.Equal("alice@example.com", claims["email"])
		})
	}
}

func TestTk_IsExpired(t *testing.T) {
	t.Parallel()
	claims := json.RawMessage(`{"sub":"alice"}`)
	tests := []struct {
		name   string
		expiry time.Time
		opt    []Option
		want   bool
	}{
		{name: "zero-expiry", want: false},
		{name: "future", expiry: time.Now().Add(time.Hour), want: false},
		{name: "past", expiry: time.Now().Add(-time.Hour), want: true},
		{name: "within-default-skew", expiry: time.Now().Add(5 * time.Second), want: true},
		{name: "WithExpirySkew", expiry: time.Now().Add(time.Minute), opt: []Option{WithExpirySkew(2 * time.Minute)}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			tk, err := NewToken("", &oauth2.Token{AccessToken: "a", Expiry: tt.expiry}, claims)
			require.NoError(err)
			assert.Equal(tt.want, tk.IsExpired(tt.opt...))
		})
	}
}

func TestTk_Scope(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	underlying := (&oauth2.Token{AccessToken: "a"}).WithExtra(map[string]interface{}{"scope": "openid profile email"})
	tk, err := NewToken("", underlying, json.RawMessage(`{"sub":"alice"}`))
	require.NoError(err)
	assert.Equal("openid profile email", tk.Scope())

	tk, err = NewToken("", &oauth2.Token{AccessToken: "a"}, json.RawMessage(`{"sub":"alice"}`))
	require.NoError(err)
	assert.Empty(tk.Scope())
}

func TestAccessToken_String(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert := assert.New(t)
		const want = RedactedAccessToken
		tk := AccessToken("super secret token")
		assert.Equalf(want, tk.String(), "AccessToken.String() = %v, want %v", tk.String(), want)
	})
}

func TestAccessToken_MarshalJSON(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		want := fmt.Sprintf(`"%s"`, RedactedAccessToken)
		tk := AccessToken("super secret token")
		got, err := tk.MarshalJSON()
		require.NoError(err)
		assert.Equalf([]byte(want), got, "AccessToken.MarshalJSON() = %s, want %s", got, want)
	})
}
