package server

import (
	"net/http"
	"strings"
)

const (
	// charts load plotly.js from its CDN and carry the figure in an inline
	// script; plotly injects its own styles and data: images
	chartPolicy = "default-src 'none'; script-src 'unsafe-inline' https://cdn.plot.ly; " +
		"style-src 'unsafe-inline'; img-src data: blob:; font-src data:; frame-ancestors 'self'"
	apiPolicy = "default-src 'none'; frame-ancestors 'none'"
)

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if strings.HasPrefix(r.URL.Path, "/charts/") {
			// charts may be embedded by a same origin dashboard
			h.Set("Content-Security-Policy", chartPolicy)
			h.Set("X-Frame-Options", "SAMEORIGIN")
		} else {
			h.Set("Content-Security-Policy", apiPolicy)
			h.Set("X-Frame-Options", "DENY")
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			// status and exports change with every run
			h.Set("Cache-Control", "no-store")
		}

		next.ServeHTTP(w, r)
	})
}
