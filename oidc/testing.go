// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// TestSigningKey is an ES256 key that signs test id_tokens.
type TestSigningKey struct {
	KeyID string
	key   *ecdsa.PrivateKey
}

// NewTestSigningKey generates a TestSigningKey with a random key id.
func NewTestSigningKey(t *testing.T) *TestSigningKey {
	t.Helper()
	require := require.New(t)
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	kid, err := NewID(WithPrefix("kid"))
	require.NoError(err)
	return &TestSigningKey{KeyID: kid, key: key}
}

// JWKS returns the key set a provider publishes for the key.
func (k *TestSigningKey) JWKS() *jose.JSONWebKeySet {
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       k.key.Public(),
			KeyID:     k.KeyID,
			Algorithm: string(jose.ES256),
			Use:       "sig",
		}},
	}
}

// TestIDTokenClaims are the claims of a test id_token.  UserInfo holds the
// profile claims the application keeps in its session (email, name, etc) and
// Custom any other claims.  Later maps win over earlier ones.
type TestIDTokenClaims struct {
	Issuer   string
	Subject  string
	Audience []string
	Nonce    string
	IssuedAt time.Time
	TTL      time.Duration
	UserInfo map[string]interface{}
	Custom   map[string]interface{}
}

// SignIDToken signs the claims as a compact ES256 JWT.  A zero IssuedAt is
// now, and a zero TTL is five minutes.
func (k *TestSigningKey) SignIDToken(t *testing.T, c TestIDTokenClaims) string {
	t.Helper()
	require := require.New(t)

	iat := c.IssuedAt
	if iat.IsZero() {
		iat = time.Now()
	}
	ttl := c.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	std := jwt.Claims{
		Issuer:    c.Issuer,
		Subject:   c.Subject,
		Audience:  jwt.Audience(c.Audience),
		IssuedAt:  jwt.NewNumericDate(iat),
		NotBefore: jwt.NewNumericDate(iat.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(iat.Add(ttl)),
	}
	private := map[string]interface{}{}
	for _, m := range []map[string]interface{}{c.UserInfo, c.Custom} {
		for name, v := range m {
			private[name] = v
		}
	}
	if c.Nonce != "" {
		private["nonce"] = c.Nonce
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: k.key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader(jose.HeaderKey("kid"), k.KeyID),
	)
	require.NoError(err)
	raw, err := jwt.Signed(signer).Claims(std).Claims(private).Serialize()
	require.NoError(err)
	return raw
}

// TestCACert returns a short lived, self-signed PEM CA certificate for
// localhost.
func TestCACert(t *testing.T) string {
	t.Helper()
	require := require.New(t)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(err)

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "cap-webapp test CA"},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(time.Hour),
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}
