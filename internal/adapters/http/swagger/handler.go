// Package swagger serves the API reference.
package swagger

import (
	"context"
	"net/http"
	"strings"
)

// RedocURL is the ReDoc bundle loaded by the docs page unless a local bundle
// is configured.
const RedocURL = "https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"

// bundleRoute serves a local ReDoc bundle.
const bundleRoute = "/api-docs/redoc.standalone.js"

type docs struct {
	bundle string
}

// Option configures Register.
type Option func(*docs)

// WithRedocBundle serves the ReDoc script from the file at path, so the docs
// page works without network access. An empty path keeps the CDN.
func WithRedocBundle(path string) Option {
	return func(d *docs) {
		d.bundle = strings.TrimSpace(path)
	}
}

// Register attaches the API docs routes to mux.
// Routes:
//
//	GET /api-docs                      -> ReDoc HTML
//	GET /openapi.yaml                  -> embedded OpenAPI document
//	GET /api-docs/redoc.standalone.js  -> local ReDoc bundle, when configured
func Register(_ context.Context, mux *http.ServeMux, opts ...Option) {
	if mux == nil {
		panic("mux is nil")
	}
	d := &docs{}
	for _, opt := range opts {
		opt(d)
	}

	script := RedocURL
	if d.bundle != "" {
		script = bundleRoute
		mux.HandleFunc(bundleRoute, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
			http.ServeFile(w, r, d.bundle)
		})
	}
	page := indexHTML(script)

	mux.HandleFunc("/api-docs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}

func indexHTML(script string) string {
	return `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Podium API</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="` + script + `"></script>
    <script>Redoc.init('/openapi.yaml', { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`
}
