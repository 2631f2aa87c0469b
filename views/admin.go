// Package views renders the admin pages around the visits dashboard.
package views

import (
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"
)

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem auto;max-width:56rem;color:#1c1917}` +
	`table{width:100%;border-collapse:collapse}td,th{padding:.25rem .5rem;text-align:left;border-bottom:1px solid #e7e5e4}` +
	`.bar{height:.5rem;background:#1c1917}.totals{display:flex;gap:2rem;margin:1rem 0}.totals span{font-size:1.5rem;font-weight:600}` +
	`.periods a{margin-right:.5rem;cursor:pointer}.periods a.active{font-weight:700}.error{color:#b91c1c}`

func page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>%s</title><style>%s</style><script src="https://unpkg.com/htmx.org@2.0.4"></script></head><body>`,
			html.EscapeString(title), pageStyle); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

// AdminLogin renders the password form.
func AdminLogin(siteName string, showError bool, csrfToken string) templ.Component {
	return page(siteName+" admin", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<h1>%s</h1>`, html.EscapeString(siteName)); err != nil {
			return err
		}
		if showError {
			if _, err := io.WriteString(w, `<p class="error">Invalid password.</p>`); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w,
			`<form method="post" action="/admin/login/"><input type="hidden" name="_csrf" value="%s"><input type="password" name="password" autofocus required><button type="submit">Sign in</button></form>`,
			html.EscapeString(csrfToken))
		return err
	}))
}

// AdminDashboard renders the dashboard shell around the visits fragment.
func AdminDashboard(siteName string, csrfToken string, visits templ.Component) templ.Component {
	return page(siteName+" dashboard", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			`<header><h1>%s</h1><form method="post" action="/admin/logout/"><input type="hidden" name="_csrf" value="%s"><button type="submit">Sign out</button></form></header>`,
			html.EscapeString(siteName), html.EscapeString(csrfToken)); err != nil {
			return err
		}
		return visits.Render(ctx, w)
	}))
}

// StatusPage renders a plain error page for non-API requests.
func StatusPage(code int, message string) templ.Component {
	return page(message, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<h1>%d</h1><p>%s</p>`, code, html.EscapeString(message))
		return err
	}))
}
