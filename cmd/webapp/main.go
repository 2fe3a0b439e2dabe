// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// Command webapp serves a small web application that logs users in with an
// OpenID Connect provider (Auth0 by default) and guards a protected page.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/cap-webapp/config"
	"github.com/hashicorp/cap-webapp/handler"
	"github.com/hashicorp/cap-webapp/oidc"
	"github.com/hashicorp/cap-webapp/render"
	"github.com/hashicorp/cap-webapp/session"
	"github.com/hashicorp/go-hclog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run() error {
	const op = "main.run"
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	logger := hclog.New(cfg.LoggerOptions("webapp"))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	pc, err := cfg.ProviderConfig(logger.Named("oidc"))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p, err := oidc.NewProvider(pc)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer p.Done()

	store, err := session.NewStore(string(cfg.SecretKey),
		session.WithSecure(cfg.CookieSecure),
		session.WithMaxAge(cfg.SessionTTL),
		session.WithAttemptMaxAge(cfg.LoginTTL),
		session.WithLogger(logger.Named("session")),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r, err := render.New()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	baseURL, err := cfg.BaseURLValue()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	h, err := handler.New(logger.Named("handler"), p, store, r,
		handler.WithBaseURL(baseURL),
		handler.WithTrustProxy(cfg.TrustProxy),
		handler.WithLoginTTL(cfg.LoginTTL),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "issuer", pc.Issuer)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server failed: %w", op, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown failed: %w", op, err)
	}
	return nil
}
