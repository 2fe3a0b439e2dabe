// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package webapp_test

import (
	"net/http"
	"time"

	"github.com/hashicorp/cap-webapp/handler"
	"github.com/hashicorp/cap-webapp/oidc"
	"github.com/hashicorp/cap-webapp/render"
	"github.com/hashicorp/cap-webapp/session"
	"github.com/hashicorp/go-hclog"
)

func Example() {
	logger := hclog.New(&hclog.LoggerOptions{Name: "webapp"})

	// The provider registration.  Nothing is requested from the issuer until
	// the first login.
	pc := oidc.NewConfig(
		"https://your-tenant.auth0.com/",
		"your_client_id",
		"your_client_secret",
		[]oidc.Alg{oidc.RS256},
		oidc.WithLogger(logger.Named("oidc")),
	)
	p, err := oidc.NewProvider(pc)
	if err != nil {
		// handle error
	}
	defer p.Done()

	store, err := session.NewStore("your_app_secret_key", session.WithMaxAge(24*time.Hour))
	if err != nil {
		// handle error
	}
	r, err := render.New()
	if err != nil {
		// handle error
	}
	h, err := handler.New(logger.Named("handler"), p, store, r)
	if err != nil {
		// handle error
	}

	srv := &http.Server{
		Addr:              ":3000",
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	_ = srv // srv.ListenAndServe()
}
