package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		want       string
	}{
		{"direct peer", "203.0.113.7:5000", "", "", "203.0.113.7"},
		{"untrusted peer ignores forwarding", "203.0.113.7:5000", "198.51.100.1", "", "203.0.113.7"},
		{"trusted proxy uses first forwarded", "10.0.0.2:80", "198.51.100.1, 10.0.0.5", "", "198.51.100.1"},
		{"trusted proxy falls back to real ip", "127.0.0.1:80", "garbage", "198.51.100.9", "198.51.100.9"},
		{"trusted proxy without headers", "192.168.1.4:80", "", "", "192.168.1.4"},
		{"remote addr without port", "203.0.113.7", "", "", "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		agent  string
		want   bool
	}{
		{"normal api call", http.MethodGet, "/api/periods/2025/1/summary", "Mozilla/5.0", false},
		{"path traversal", http.MethodGet, "/api/../../etc/passwd", "", true},
		{"dotenv probe", http.MethodGet, "/.env", "", true},
		{"sql injection in query", http.MethodGet, "/api/summary?month=1%20UNION%20SELECT", "", true},
		{"scanner agent", http.MethodGet, "/api/summary", "sqlmap/1.7", true},
		{"trace method", "TRACE", "/api/summary", "", true},
		{"oversized url", http.MethodGet, "/api/summary?x=" + strings.Repeat("a", maxURLLength), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			r.Header.Set("User-Agent", tt.agent)
			m := &securityMetrics{}
			if got := detectSuspiciousRequest(r, m); got != tt.want {
				t.Errorf("detectSuspiciousRequest() = %v, want %v", got, tt.want)
			}
			if tt.want && m.snapshot().SuspiciousRequests != 1 {
				t.Errorf("suspicious request not counted: %+v", m.snapshot())
			}
		})
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2)
	defer rl.stop()
	now := time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	m := &securityMetrics{}

	for i, want := range []bool{true, true, false} {
		if got := rl.allow("198.51.100.1", m); got != want {
			t.Fatalf("request %d: allow() = %v, want %v", i+1, got, want)
		}
	}
	if !rl.allow("198.51.100.2", m) {
		t.Error("limits must be per client")
	}

	now = now.Add(rateWindow)
	if !rl.allow("198.51.100.1", m) {
		t.Error("a new window must reset the count")
	}
	if m.snapshot().RateLimitHits != 1 {
		t.Errorf("expected one hit, got %+v", m.snapshot())
	}

	now = now.Add(3 * rateWindow)
	rl.sweep()
	rl.mu.Lock()
	left := len(rl.windows)
	rl.mu.Unlock()
	if left != 0 {
		t.Errorf("sweep left %d windows", left)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	applySecurityHeaders(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	for name, want := range apiSecurityHeaders {
		if got := rr.Header().Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must only be sent over TLS")
	}
}
