// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

/*
Package handler provides the web application's routes:

	GET /           landing page, shows the session user when logged in
	GET /login      starts an authorization code flow with the provider
	GET /callback   completes the flow and writes the session
	GET /logout     clears the session and logs out of the provider
	GET /protected  only for logged in users
	GET /healthz    liveness

Every route returns an error instead of writing failures itself.  A single
boundary maps the error to a status code, sends the client a generic body
and logs the detail.
*/
package handler
