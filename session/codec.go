// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/crypto/hkdf"
)

const (
	// sessionKeyLabel and attemptKeyLabel are the HKDF info labels used to
	// derive each cookie's HMAC key from the application secret.
	sessionKeyLabel = "session"
	attemptKeyLabel = "login-attempt"

	keyLen = 32
)

// parseableAlgs is the only algorithm a cookie may be signed with.
var parseableAlgs = []jose.SignatureAlgorithm{jose.HS256}

// codec signs and verifies cookie payloads as compact HS256 JWS values.
type codec struct {
	key    []byte
	signer jose.Signer
}

// deriveKey derives a keyLen HMAC key from secret for the given label.
func deriveKey(secret []byte, label string) ([]byte, error) {
	const op = "session.deriveKey"
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(label)), key); err != nil {
		return nil, fmt.Errorf("%s: unable to derive %s key: %w", op, label, err)
	}
	return key, nil
}

func newCodec(secret []byte, label string) (*codec, error) {
	const op = "session.newCodec"
	if len(secret) == 0 {
		return nil, fmt.Errorf("%s: secret is empty: %w", op, ErrInvalidParameter)
	}
	key, err := deriveKey(secret, label)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create signer: %w", op, err)
	}
	return &codec{key: key, signer: signer}, nil
}

// encode signs the payload claims with iat set to now and exp set to now plus
// ttl.
func (c *codec) encode(payload interface{}, now time.Time, ttl time.Duration) (string, error) {
	const op = "session.(codec).encode"
	std := jwt.Claims{
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
	}
	raw, err := jwt.Signed(c.signer).Claims(std).Claims(payload).Serialize()
	if err != nil {
		return "", fmt.Errorf("%s: unable to sign claims: %w", op, err)
	}
	return raw, nil
}

// decode verifies raw and unmarshals its payload claims into payload.  Errors
// are one of ErrInvalidSignature, ErrExpired or ErrMalformed.
func (c *codec) decode(raw string, now time.Time, payload interface{}) error {
	const op = "session.(codec).decode"
	tok, err := jwt.ParseSigned(raw, parseableAlgs)
	if err != nil {
		return fmt.Errorf("%s: unable to parse jws: %s: %w", op, err, ErrMalformed)
	}
	var std jwt.Claims
	if err := tok.Claims(c.key, &std, payload); err != nil {
		if errors.Is(err, jose.ErrCryptoFailure) {
			return fmt.Errorf("%s: %w", op, ErrInvalidSignature)
		}
		return fmt.Errorf("%s: unable to get claims: %s: %w", op, err, ErrMalformed)
	}
	switch {
	case std.Expiry == nil:
		return fmt.Errorf("%s: missing exp claim: %w", op, ErrMalformed)
	case !now.Before(std.Expiry.Time()):
		return fmt.Errorf("%s: expired at %s: %w", op, std.Expiry.Time(), ErrExpired)
	}
	return nil
}
