// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/hashicorp/cap-webapp/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Renderer renders the application's pages.  It's safe for concurrent use.
type Renderer struct {
	templates *template.Template
}

// New parses the embedded page templates.
func New() (*Renderer, error) {
	const op = "render.New"
	t, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse templates: %w", op, err)
	}
	return &Renderer{templates: t}, nil
}

type page struct {
	Title    string
	LoggedIn bool
	Name     string
	Pretty   string
	User     *session.User
}

// Home renders the landing page.  When the session is authenticated it
// includes an indented JSON view of the session's user, otherwise a login
// prompt.
func (r *Renderer) Home(s *session.Session) ([]byte, error) {
	const op = "Renderer.Home"
	p := page{Title: "Home"}
	if s.Authenticated() {
		pretty, err := json.MarshalIndent(s.User, "", "    ")
		if err != nil {
			return nil, fmt.Errorf("%s: unable to marshal session user: %w", op, err)
		}
		p.LoggedIn = true
		p.Name = displayName(s.User.UserInfo)
		p.Pretty = string(pretty)
		p.User = s.User
	}
	b, err := r.execute("home.html", p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// Protected renders the protected page for u, showing its subject and its
// full token bundle.
func (r *Renderer) Protected(u *session.User) ([]byte, error) {
	const op = "Renderer.Protected"
	if !u.Valid() {
		return nil, fmt.Errorf("%s: user is missing a subject: %w", op, ErrInvalidUser)
	}
	pretty, err := json.MarshalIndent(u, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to marshal user: %w", op, err)
	}
	b, err := r.execute("protected.html", page{
		Title:    "Protected",
		LoggedIn: true,
		Name:     displayName(u.UserInfo),
		Pretty:   string(pretty),
		User:     u,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// execute renders into a buffer, so a template failure never produces
// partial output.
func (r *Renderer) execute(name string, data interface{}) ([]byte, error) {
	const op = "Renderer.execute"
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("%s: unable to render %s: %w", op, name, err)
	}
	return buf.Bytes(), nil
}

func displayName(u session.UserInfo) string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Nickname != "":
		return u.Nickname
	case u.Email != "":
		return u.Email
	default:
		return u.Subject
	}
}
