// Package server provides HTTP middleware shared by the API server.
package server

import (
	"net/http"
	"slices"
	"strings"
)

// CSP is a Content-Security-Policy as ordered directive/source pairs.
type CSP [][2]string

// APICSP forbids every fetch; JSON responses and blobs load nothing.
func APICSP() CSP {
	return CSP{
		{"default-src", "'none'"},
		{"frame-ancestors", "'none'"},
		{"base-uri", "'none'"},
		{"form-action", "'none'"},
	}
}

// ArticleCSP allows a rendered article to show images from its own origin,
// from data URLs and from the content-hash link host.
func ArticleCSP(blobHost string) CSP {
	img := "'self' data:"
	if blobHost != "" {
		img += " " + blobHost
	}
	return CSP{
		{"default-src", "'none'"},
		{"img-src", img},
		{"frame-ancestors", "'none'"},
		{"base-uri", "'none'"},
	}
}

// String renders the header value.
func (c CSP) String() string {
	parts := make([]string, 0, len(c))
	for _, d := range c {
		parts = append(parts, d[0]+" "+d[1])
	}
	return strings.Join(parts, "; ")
}

// SecurityHeaders sets the standard hardening headers and csp.
func SecurityHeaders(csp CSP, next http.Handler) http.Handler {
	value := csp.String()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if value != "" {
			h.Set("Content-Security-Policy", value)
		}
		next.ServeHTTP(w, r)
	})
}

// CORS adds CORS headers. An empty allowed list allows every origin
// without credentials. Preflight requests from other origins get 403.
func CORS(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allow := "*"
		if len(allowed) > 0 {
			if !slices.Contains(allowed, origin) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			allow = origin
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allow)
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if allow != "*" {
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
