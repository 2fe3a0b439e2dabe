// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

/*
Package session keeps the browser's state in signed cookies.  Nothing is ever
stored server side.

There are two cookies.  The session cookie carries the authenticated user
(their token bundle and user info) and is written after a successful login.
The login attempt cookie carries the pending oidc.State (state id, nonce,
PKCE verifier and redirect URL) between the /login redirect and the
/callback.

Both are compact HS256 JWS values.  Each cookie has its own HMAC key, derived
from the application secret with HKDF, so a value issued for one cookie will
never verify as the other.  Reads fail closed: a cookie that is missing,
expired, tampered with or malformed reads as absent.
*/
package session
