package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

// captureLogOutput redirects the global logger to a buffer while f runs.
func captureLogOutput(level Level, format Format, f func()) string {
	var buf bytes.Buffer
	old := defaultLogger
	Init(&buf, level, format)
	f()
	defaultLogger = old
	slog.SetDefault(old)
	return buf.String()
}

func decodeLine(t *testing.T, out string) map[string]any {
	t.Helper()
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("log line is not JSON: %q: %v", line, err)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestLevelFiltering(t *testing.T) {
	out := captureLogOutput(LevelWarn, FormatJSON, func() {
		Debug("hidden")
		Info("hidden")
		Warn("shown")
		Error("shown too")
	})
	if strings.Contains(out, "hidden") {
		t.Errorf("below-level messages logged: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "shown too") {
		t.Errorf("missing messages: %s", out)
	}
}

func TestTextFormat(t *testing.T) {
	out := captureLogOutput(LevelInfo, FormatText, func() {
		Info("hello", "key", "value")
	})
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "key=value") {
		t.Errorf("text output = %q", out)
	}
}

func TestTimestampFormat(t *testing.T) {
	out := captureLogOutput(LevelInfo, FormatJSON, func() {
		Info("tick")
	})
	m := decodeLine(t, out)
	ts, _ := m["time"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("time %q is not RFC3339: %v", ts, err)
	}
}

func TestContextIDs(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithConversionID(ctx, "conv-1")
	ctx = WithArticleID(ctx, "e00001")
	if RequestID(ctx) != "req-1" || ConversionID(ctx) != "conv-1" {
		t.Fatalf("ids = %q %q", RequestID(ctx), ConversionID(ctx))
	}
	if RequestID(context.Background()) != "" || ConversionID(context.Background()) != "" {
		t.Error("empty context should have no ids")
	}

	out := captureLogOutput(LevelDebug, FormatJSON, func() {
		DebugContext(ctx, "resolved")
	})
	m := decodeLine(t, out)
	if m["request_id"] != "req-1" || m["conversion_id"] != "conv-1" || m["article_id"] != "e00001" {
		t.Errorf("log line = %v", m)
	}
}

func TestContextIDsThroughSlogDefault(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-2")
	out := captureLogOutput(LevelInfo, FormatJSON, func() {
		slog.Default().With("component", "x").InfoContext(ctx, "direct")
	})
	m := decodeLine(t, out)
	if m["request_id"] != "req-2" || m["component"] != "x" {
		t.Errorf("log line = %v", m)
	}
}

func TestConversionHelpers(t *testing.T) {
	ctx := WithConversionID(context.Background(), "c-9")
	out := captureLogOutput(LevelInfo, FormatJSON, func() {
		ConversionStage(ctx, "match", "resources", 4)
	})
	m := decodeLine(t, out)
	if m["msg"] != "conversion_stage" || m["stage"] != "match" || m["resources"] != float64(4) {
		t.Errorf("stage line = %v", m)
	}

	out = captureLogOutput(LevelInfo, FormatJSON, func() {
		ConversionError(ctx, "render", errors.New("disk full"))
	})
	m = decodeLine(t, out)
	if m["level"] != "ERROR" || m["error"] != "disk full" || m["conversion_id"] != "c-9" {
		t.Errorf("error line = %v", m)
	}
}

func TestEventHelpers(t *testing.T) {
	out := captureLogOutput(LevelInfo, FormatJSON, func() {
		WebSocketEvent("connect", 3)
		ServerStartup("api", "http", ":8080")
		SecurityEvent("rate_limited", "api", "remote_addr", "10.0.0.1")
	})
	for _, want := range []string{`"websocket_event"`, `"client_count":3`, `"server_startup"`, `"addr":":8080"`, `"security_event"`, `"rate_limited"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"generated", "", false},
		{"given", "abc-123", true},
		{"rejected", "bad id\r\n", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
				t.Errorf("context id %q, header %q", seen, rec.Header().Get(RequestIDHeader))
			}
			if (seen == tt.header) != tt.keep {
				t.Errorf("id = %q for header %q", seen, tt.header)
			}
		})
	}
}

func TestAccessLog(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"ok", http.StatusOK, "INFO"},
		{"client error", http.StatusTeapot, "WARN"},
		{"server error", http.StatusBadGateway, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CombinedMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("body"))
			}))
			var rec *httptest.ResponseRecorder
			out := captureLogOutput(LevelInfo, FormatJSON, func() {
				rec = httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", nil))
			})
			if rec.Code != tt.status {
				t.Errorf("status = %d, first WriteHeader should win", rec.Code)
			}
			m := decodeLine(t, out)
			if m["msg"] != "http_request" || m["level"] != tt.level || m["status_code"] != float64(tt.status) ||
				m["bytes"] != float64(4) || m["request_id"] == nil {
				t.Errorf("request line = %v", m)
			}
		})
	}
}

func TestAccessLogImplicitOK(t *testing.T) {
	h := AccessLog(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	out := captureLogOutput(LevelInfo, FormatJSON, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	})
	if m := decodeLine(t, out); m["status_code"] != float64(http.StatusOK) {
		t.Errorf("request line = %v", m)
	}
}

func TestStatusRecorderHijackUnsupported(t *testing.T) {
	rw := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("recorder cannot be hijacked")
	}
	if rw.Unwrap() == nil {
		t.Error("Unwrap returned nil")
	}
}
