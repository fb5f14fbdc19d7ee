package security

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mgarrido/lumicat/internal/config"
	"github.com/mgarrido/lumicat/internal/logging"
)

// AdminPathPrefix marks routes that require the admin key.
const AdminPathPrefix = "/v1/admin/"

// Gate is the request-defense pipeline. It runs synchronously in front of
// the protected handler; any stage may short-circuit with a rejection, in
// which case the handler is never invoked.
//
// Stage order: identity resolution, User-Agent filter, honeypot check,
// ban check and scraping detection, rate limiting, key verification.
type Gate struct {
	cfg      *config.Config
	keys     *KeyVerifier
	limiter  *RateLimiter
	uaFilter *UserAgentFilter
	detector *Detector
	logger   *zap.Logger

	authExempt map[string]struct{}
	rateExempt map[string]struct{}
}

// NewGate wires the pipeline from configuration. Bans are written into the
// given registry, which may be shared across instances.
func NewGate(cfg *config.Config, bans BanRegistry, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		cfg:        cfg,
		keys:       NewKeyVerifier(cfg.APIKeys, cfg.AdminKeys, cfg.InsecureSkipAuth),
		limiter:    NewRateLimiter(cfg.RateLimitPerClient, cfg.RateLimitGlobal, cfg.RateLimitBurst),
		uaFilter:   NewUserAgentFilter(cfg.BlockedUserAgents),
		detector:   NewDetector(cfg.ScrapingDetectionEnabled, cfg.BanFirstOffense, cfg.HoneypotPaths, bans, logger),
		logger:     logger,
		authExempt: pathSet(cfg.AuthExemptPaths),
		rateExempt: pathSet(cfg.RateExemptPaths),
	}
}

// Detector exposes the gate's scraping detector.
func (g *Gate) Detector() *Detector { return g.detector }

// Bans exposes the registry the gate writes bans into.
func (g *Gate) Bans() BanRegistry { return g.detector.Bans() }

// Middleware applies the full pipeline in front of next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		path := r.URL.Path
		identity := ResolveIdentity(r.Header, r.RemoteAddr, g.cfg.APIKeyHeader)
		ip := RemoteIP(r.RemoteAddr)

		g.hardeningHeaders(w)

		if path != "/health" && !g.uaFilter.IsAllowed(r.UserAgent()) {
			g.logger.Warn("user-agent blocked",
				logging.Event("blocked_user_agent"),
				logging.UserAgent(r.UserAgent()),
				logging.RemoteIP(ip))
			g.reject(w, http.StatusForbidden, "User-Agent not allowed")
			return
		}

		if g.detector.IsHoneypotAccess(path, r.RemoteAddr) {
			// Masquerade as not-found so the trap is never confirmed.
			g.reject(w, http.StatusNotFound, "Not found")
			return
		}

		if g.detector.IsSuspicious(identity, path, r.Referer(), r.RemoteAddr, now) {
			g.reject(w, http.StatusForbidden, "Suspicious activity detected")
			return
		}

		if g.cfg.RateLimitEnabled {
			if _, exempt := g.rateExempt[path]; !exempt {
				if !g.limiter.AllowGlobal() {
					g.rejectRateLimited(w, Decision{ResetAt: now.Add(rateWindow), RetryAfter: rateWindow})
					return
				}
				decision := g.limiter.Admit(identity, now)
				if !decision.Allowed {
					g.logger.Warn("rate limit exceeded",
						logging.Event("rate_limit"),
						logging.Identity(identity),
						zap.Int("limit", g.limiter.Limit()))
					g.rejectRateLimited(w, decision)
					return
				}
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(g.limiter.Limit()))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			}
		}

		if !g.authorize(w, r, path, ip) {
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if path != "/health" {
			g.logger.Info("api access",
				logging.KeyPrefix(KeyPreview(r.Header.Get(g.cfg.APIKeyHeader))),
				logging.Method(r.Method),
				logging.Path(path),
				logging.RemoteIP(ip),
				logging.Status(rec.status),
				zap.Duration("elapsed", time.Since(now)))
		}
	})
}

// authorize enforces key verification on protected and admin routes.
// Returns false after writing the rejection.
func (g *Gate) authorize(w http.ResponseWriter, r *http.Request, path, ip string) bool {
	if strings.HasPrefix(path, AdminPathPrefix) {
		key := r.Header.Get(g.cfg.AdminKeyHeader)
		if !g.keys.VerifyAdmin(key) {
			g.logger.Warn("admin auth failed",
				logging.Event("auth_failed"),
				logging.KeyPrefix(KeyPreview(key)),
				logging.RemoteIP(ip))
			g.reject(w, http.StatusForbidden, "Forbidden")
			return false
		}
		return true
	}

	if _, exempt := g.authExempt[path]; exempt {
		return true
	}

	key := r.Header.Get(g.cfg.APIKeyHeader)
	if g.keys.VerifyRegular(key) {
		return true
	}
	w.Header().Set("WWW-Authenticate", "ApiKey")
	if key == "" {
		g.logger.Warn("auth failed", logging.Event("auth_failed"), logging.RemoteIP(ip), zap.String("reason", "no key"))
		g.reject(w, http.StatusUnauthorized, fmt.Sprintf("API key required. Provide the %s header", g.cfg.APIKeyHeader))
		return false
	}
	g.logger.Warn("auth failed",
		logging.Event("auth_failed"),
		logging.KeyPrefix(KeyPreview(key)),
		logging.RemoteIP(ip),
		zap.String("reason", "invalid key"))
	g.reject(w, http.StatusUnauthorized, "Invalid API key")
	return false
}

// hardeningHeaders sets the generic response headers and masks the server
// identity.
func (g *Gate) hardeningHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Server", g.cfg.ServerMask)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "no-referrer")
	if g.cfg.HTTPSEnabled {
		h.Set("Strict-Transport-Security",
			fmt.Sprintf("max-age=%d; includeSubDomains", g.cfg.HSTSMaxAge))
	}
}

func (g *Gate) reject(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (g *Gate) rejectRateLimited(w http.ResponseWriter, decision Decision) {
	h := w.Header()
	h.Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
	h.Set("X-RateLimit-Limit", strconv.Itoa(g.limiter.Limit()))
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"detail": fmt.Sprintf("Rate limit exceeded. Maximum %d requests per 60 seconds.", g.limiter.Limit()),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func pathSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
