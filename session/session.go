// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"
	"time"

	"github.com/hashicorp/cap-webapp/oidc"
)

// Session is the state associated with one browser.  A Session without a
// User is anonymous.
type Session struct {
	User *User `json:"user,omitempty"`
}

// Authenticated returns true when the session carries a structurally valid
// user.
func (s *Session) Authenticated() bool {
	return s != nil && s.User.Valid()
}

// User is the token bundle returned by the provider for the logged in user.
type User struct {
	AccessToken string    `json:"access_token"`
	IDToken     string    `json:"id_token,omitempty"`
	TokenType   string    `json:"token_type,omitempty"`
	Expiry      time.Time `json:"expires_at,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	UserInfo    UserInfo  `json:"userinfo"`
}

// Valid returns true when the user has a subject.
func (u *User) Valid() bool {
	return u != nil && u.UserInfo.Subject != ""
}

// Expired returns true when the user's access token has expired at now.  A
// zero Expiry never expires.
func (u *User) Expired(now time.Time) bool {
	if u == nil || u.Expiry.IsZero() {
		return false
	}
	return !now.Before(u.Expiry)
}

// UserInfo is the set of standard claims the application keeps about a user.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	Nickname      string `json:"nickname,omitempty"`
	Picture       string `json:"picture,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// NewUser builds a User from the tokens returned by a successful code
// exchange.  The access token must be valid and the token's claims must
// include a subject.
func NewUser(t oidc.Token) (*User, error) {
	const op = "session.NewUser"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%s: access token is empty or expired: %w", op, ErrInvalidParameter)
	}
	u := &User{
		AccessToken: string(t.AccessToken()),
		IDToken:     string(t.IDToken()),
		TokenType:   t.TokenType(),
		Expiry:      t.Expiry(),
		Scope:       t.Scope(),
	}
	if err := t.Claims(&u.UserInfo); err != nil {
		return nil, fmt.Errorf("%s: unable to get user info claims: %w", op, err)
	}
	if !u.Valid() {
		return nil, fmt.Errorf("%s: user info is missing a subject: %w", op, ErrInvalidParameter)
	}
	return u, nil
}
