package security

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mgarrido/lumicat/internal/config"
)

func gateConfig() *config.Config {
	return &config.Config{
		Environment:    config.EnvDevelopment,
		APIKeys:        []string{"test-key-1234"},
		AdminKeys:      []string{"admin-key-5678"},
		APIKeyHeader:   "X-API-Key",
		AdminKeyHeader: "X-Admin-Key",

		RateLimitEnabled:   true,
		RateLimitPerClient: 5,
		RateLimitGlobal:    1000,
		RateLimitBurst:     100,

		ScrapingDetectionEnabled: true,
		BanFirstOffense:          time.Hour,
		BanSecondOffense:         24 * time.Hour,

		BlockedUserAgents: config.DefaultBlockedUserAgents,
		AuthExemptPaths:   []string{"/", "/health", "/robots.txt"},
		RateExemptPaths:   []string{"/", "/health"},
		HoneypotPaths:     config.DefaultHoneypotPaths,

		ServerMask: "Web Server",
	}
}

func newTestGate(cfg *config.Config) http.Handler {
	gate := NewGate(cfg, NewMemoryBanRegistry(), zap.NewNop())
	return gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
}

func browserRequest(method, path string) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/130.0")
	r.Header.Set("Referer", "https://example.com/catalog")
	return r
}

func errorDetail(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decoding error body %q: %v", body, err)
	}
	return resp.Detail
}

func TestGateBlocksUserAgents(t *testing.T) {
	handler := newTestGate(gateConfig())

	for _, ua := range []string{"", "curl/8.5.0", "python-requests/2.31", "Scrapy/2.11"} {
		r := httptest.NewRequest(http.MethodGet, "/v1/internal/products", nil)
		if ua != "" {
			r.Header.Set("User-Agent", ua)
		}
		r.Header.Set("X-API-Key", "test-key-1234")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		if w.Code != http.StatusForbidden {
			t.Errorf("UA %q: status = %d, want %d", ua, w.Code, http.StatusForbidden)
		}
		if detail := errorDetail(t, w.Body.Bytes()); detail != "User-Agent not allowed" {
			t.Errorf("UA %q: detail = %q", ua, detail)
		}
	}
}

func TestGateHealthSkipsUserAgentFilter(t *testing.T) {
	handler := newTestGate(gateConfig())

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("User-Agent", "curl/8.5.0")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("health probe with curl UA: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestGateHoneypotMasqueradesAsNotFound(t *testing.T) {
	handler := newTestGate(gateConfig())

	r := browserRequest(http.MethodGet, "/api/sitemap.xml")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if detail := errorDetail(t, w.Body.Bytes()); detail != "Not found" {
		t.Errorf("detail = %q, want a plain not-found", detail)
	}
}

func TestGateHoneypotSecondStrikeBansClient(t *testing.T) {
	handler := newTestGate(gateConfig())

	for _, path := range []string{"/api/sitemap.xml", "/api/all-products"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, browserRequest(http.MethodGet, path))
		if w.Code != http.StatusNotFound {
			t.Fatalf("honeypot %s: status = %d, want 404", path, w.Code)
		}
	}

	// httptest requests share a RemoteAddr, so the second strike banned
	// this client. Even a clean request is now refused.
	r := browserRequest(http.MethodGet, "/v1/internal/products")
	r.Header.Set("X-API-Key", "test-key-1234")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("post-ban request: status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if detail := errorDetail(t, w.Body.Bytes()); detail != "Suspicious activity detected" {
		t.Errorf("post-ban detail = %q", detail)
	}
}

func TestGateRequiresAPIKey(t *testing.T) {
	handler := newTestGate(gateConfig())

	r := browserRequest(http.MethodGet, "/v1/internal/products")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != "ApiKey" {
		t.Errorf("WWW-Authenticate = %q, want %q", got, "ApiKey")
	}
}

func TestGateRejectsInvalidAPIKey(t *testing.T) {
	handler := newTestGate(gateConfig())

	r := browserRequest(http.MethodGet, "/v1/internal/products")
	r.Header.Set("X-API-Key", "wrong-key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if detail := errorDetail(t, w.Body.Bytes()); detail != "Invalid API key" {
		t.Errorf("detail = %q", detail)
	}
}

func TestGateAcceptsValidAPIKey(t *testing.T) {
	handler := newTestGate(gateConfig())

	r := browserRequest(http.MethodGet, "/v1/internal/products")
	r.Header.Set("X-API-Key", "test-key-1234")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("X-RateLimit-Limit = %q, want %q", got, "5")
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("X-RateLimit-Remaining = %q, want %q", got, "4")
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset missing on a successful response")
	}
}

func TestGateAdminRoutes(t *testing.T) {
	tests := []struct {
		name       string
		adminKey   string
		regularKey string
		want       int
	}{
		{name: "no key", want: http.StatusForbidden},
		{name: "regular key is not admin", regularKey: "test-key-1234", want: http.StatusForbidden},
		{name: "regular key in admin header", adminKey: "test-key-1234", want: http.StatusForbidden},
		{name: "admin key", adminKey: "admin-key-5678", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestGate(gateConfig())
			r := browserRequest(http.MethodGet, "/v1/admin/bans")
			if tt.adminKey != "" {
				r.Header.Set("X-Admin-Key", tt.adminKey)
			}
			if tt.regularKey != "" {
				r.Header.Set("X-API-Key", tt.regularKey)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestGateRateLimitExceeded(t *testing.T) {
	cfg := gateConfig()
	cfg.RateLimitPerClient = 3
	handler := newTestGate(cfg)

	for i := 0; i < 3; i++ {
		r := browserRequest(http.MethodGet, "/v1/internal/products")
		r.Header.Set("X-API-Key", "test-key-1234")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	r := browserRequest(http.MethodGet, "/v1/internal/products")
	r.Header.Set("X-API-Key", "test-key-1234")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want %q", got, "60")
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want %q", got, "0")
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "3" {
		t.Errorf("X-RateLimit-Limit = %q, want %q", got, "3")
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset missing on the rejection")
	}
}

func TestGateExemptPathsSkipRateLimit(t *testing.T) {
	cfg := gateConfig()
	cfg.RateLimitPerClient = 2
	handler := newTestGate(cfg)

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, browserRequest(http.MethodGet, "/health"))
		if w.Code != http.StatusOK {
			t.Fatalf("health request %d: status = %d, want 200", i+1, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatal("exempt path should not carry rate limit headers")
		}
	}
}

func TestGateHardeningHeaders(t *testing.T) {
	handler := newTestGate(gateConfig())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, browserRequest(http.MethodGet, "/health"))

	want := map[string]string{
		"Server":                 "Web Server",
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must be absent when HTTPS is disabled")
	}
}

func TestGateHSTSWithHTTPS(t *testing.T) {
	cfg := gateConfig()
	cfg.HTTPSEnabled = true
	cfg.HSTSMaxAge = 31536000
	handler := newTestGate(cfg)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, browserRequest(http.MethodGet, "/health"))

	want := "max-age=31536000; includeSubDomains"
	if got := w.Header().Get("Strict-Transport-Security"); got != want {
		t.Errorf("Strict-Transport-Security = %q, want %q", got, want)
	}
}

func TestGateInsecureSkipAuth(t *testing.T) {
	cfg := gateConfig()
	cfg.APIKeys = nil
	cfg.InsecureSkipAuth = true
	handler := newTestGate(cfg)

	r := browserRequest(http.MethodGet, "/v1/internal/products")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d with auth bypassed", w.Code, http.StatusOK)
	}
}
