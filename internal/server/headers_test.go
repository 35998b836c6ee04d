package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCSPString(t *testing.T) {
	got := ArticleCSP("https://files.example.org").String()
	want := "default-src 'none'; img-src 'self' data: https://files.example.org; frame-ancestors 'none'; base-uri 'none'"
	if got != want {
		t.Errorf("ArticleCSP = %q, want %q", got, want)
	}
	if !strings.HasPrefix(APICSP().String(), "default-src 'none'") {
		t.Errorf("APICSP = %q", APICSP())
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(APICSP(), ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Referrer-Policy", "Content-Security-Policy"} {
		if w.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"allow all", nil, http.MethodGet, "https://x.example", http.StatusOK, "*"},
		{"listed origin", []string{"https://a.example"}, http.MethodGet, "https://a.example", http.StatusOK, "https://a.example"},
		{"unlisted origin passes without headers", []string{"https://a.example"}, http.MethodGet, "https://b.example", http.StatusOK, ""},
		{"unlisted preflight", []string{"https://a.example"}, http.MethodOptions, "https://b.example", http.StatusForbidden, ""},
		{"preflight", nil, http.MethodOptions, "https://x.example", http.StatusNoContent, "*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/jobs", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			CORS(tt.allowed, ok).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("allow origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}
