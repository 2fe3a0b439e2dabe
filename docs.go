// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// webapp is a small web application that hands user authentication to an
// OpenID Connect provider and keeps the user's session in a signed cookie.
//
// The packages are:
//
//	oidc     the relying party side of the authorization code flow (with PKCE)
//	session  the signed session and login attempt cookies
//	render   the HTML pages
//	handler  the routes and the error boundary
//	config   settings from the environment and an optional .env file
//
// cmd/webapp wires them together.
package webapp
