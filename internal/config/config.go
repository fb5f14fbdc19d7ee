// Package config holds the immutable runtime configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment names recognized by Config.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config enumerates every recognized option. It is loaded once at startup
// and treated as immutable for the process lifetime.
type Config struct {
	Environment string

	// HTTP
	HTTPPort  int
	HTTPSPort int
	Domain    string

	// Database
	DBPath string

	// API keys
	APIKeys        []string
	AdminKeys      []string
	APIKeyHeader   string
	AdminKeyHeader string

	// InsecureSkipAuth disables API key verification entirely. Development
	// only; Validate rejects it in production.
	InsecureSkipAuth bool

	// Rate limiting
	RateLimitEnabled   bool
	RateLimitPerClient int // requests per minute per identity
	RateLimitGlobal    int // requests per minute across all callers
	RateLimitBurst     int // burst allowance for the global limiter

	// Scraping detection
	ScrapingDetectionEnabled bool
	BanFirstOffense          time.Duration
	BanSecondOffense         time.Duration

	// User-Agent filtering
	BlockedUserAgents []string

	// Paths exempt from API key verification and rate limiting.
	AuthExemptPaths []string
	RateExemptPaths []string

	// Honeypot trap path prefixes.
	HoneypotPaths []string

	// HTTPS enforcement
	HTTPSEnabled bool
	HSTSMaxAge   int
	TLSCertFile  string
	TLSKeyFile   string
	ACMEEmail    string
	ACMEStaging  bool

	// ServerMask is the Server header value sent instead of the real stack.
	ServerMask string

	// Optional shared ban registry for multi-instance deployments.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultBlockedUserAgents is the deny-list applied when none is configured.
var DefaultBlockedUserAgents = []string{
	"python-requests",
	"curl",
	"wget",
	"scraper",
	"crawler",
	"bot",
	"spider",
	"headless",
	"phantom",
	"selenium",
	"scrapy",
}

// DefaultHoneypotPaths are trap endpoints no legitimate client is told about.
var DefaultHoneypotPaths = []string{
	"/api/sitemap.xml",
	"/api/products/export",
	"/api/all-products",
	"/sitemap.xml",
	"/api/.well-known/",
}

// Load builds a Config from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("LUMICAT_ENV", EnvDevelopment),

		HTTPPort:  getEnvInt("LUMICAT_HTTP_PORT", 8080),
		HTTPSPort: getEnvInt("LUMICAT_HTTPS_PORT", 8443),
		Domain:    getEnv("LUMICAT_DOMAIN", "localhost"),

		DBPath: getEnv("LUMICAT_DB", "lumicat.db"),

		APIKeys:        getEnvList("LUMICAT_API_KEYS", nil),
		AdminKeys:      getEnvList("LUMICAT_ADMIN_KEYS", nil),
		APIKeyHeader:   getEnv("LUMICAT_API_KEY_HEADER", "X-API-Key"),
		AdminKeyHeader: getEnv("LUMICAT_ADMIN_KEY_HEADER", "X-Admin-Key"),

		InsecureSkipAuth: getEnvBool("LUMICAT_INSECURE_SKIP_AUTH", false),

		RateLimitEnabled:   getEnvBool("LUMICAT_RATE_LIMIT_ENABLED", true),
		RateLimitPerClient: getEnvInt("LUMICAT_RATE_LIMIT_PER_CLIENT", 30),
		RateLimitGlobal:    getEnvInt("LUMICAT_RATE_LIMIT_GLOBAL", 1000),
		RateLimitBurst:     getEnvInt("LUMICAT_RATE_LIMIT_BURST", 10),

		ScrapingDetectionEnabled: getEnvBool("LUMICAT_SCRAPING_DETECTION_ENABLED", true),
		BanFirstOffense:          getEnvDuration("LUMICAT_BAN_FIRST_OFFENSE", time.Hour),
		BanSecondOffense:         getEnvDuration("LUMICAT_BAN_SECOND_OFFENSE", 24*time.Hour),

		BlockedUserAgents: getEnvList("LUMICAT_BLOCKED_USER_AGENTS", DefaultBlockedUserAgents),

		AuthExemptPaths: getEnvList("LUMICAT_AUTH_EXEMPT_PATHS", []string{"/", "/health", "/robots.txt"}),
		RateExemptPaths: getEnvList("LUMICAT_RATE_EXEMPT_PATHS", []string{"/", "/health"}),

		HoneypotPaths: getEnvList("LUMICAT_HONEYPOT_PATHS", DefaultHoneypotPaths),

		HTTPSEnabled: getEnvBool("LUMICAT_HTTPS_ENABLED", false),
		HSTSMaxAge:   getEnvInt("LUMICAT_HSTS_MAX_AGE", 31536000),
		TLSCertFile:  getEnv("LUMICAT_TLS_CERT", ""),
		TLSKeyFile:   getEnv("LUMICAT_TLS_KEY", ""),
		ACMEEmail:    getEnv("LUMICAT_ACME_EMAIL", ""),
		ACMEStaging:  getEnvBool("LUMICAT_ACME_STAGING", false),

		ServerMask: getEnv("LUMICAT_SERVER_MASK", "Web Server"),

		RedisAddr:     getEnv("LUMICAT_REDIS_ADDR", ""),
		RedisPassword: getEnv("LUMICAT_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("LUMICAT_REDIS_DB", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, failing fast on values that would be
// unsafe or meaningless at runtime.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	if c.APIKeyHeader == "" || c.AdminKeyHeader == "" {
		return fmt.Errorf("API key header names must not be empty")
	}

	if c.IsProduction() {
		if c.InsecureSkipAuth {
			return fmt.Errorf("insecure auth bypass is not allowed in production")
		}
		if len(c.APIKeys) == 0 {
			return fmt.Errorf("at least one API key is required in production")
		}
	}

	admin := make(map[string]struct{}, len(c.AdminKeys))
	for _, k := range c.AdminKeys {
		admin[k] = struct{}{}
	}
	for _, k := range c.APIKeys {
		if _, dup := admin[k]; dup {
			return fmt.Errorf("API key set and admin key set must be disjoint")
		}
	}

	if c.RateLimitPerClient <= 0 {
		return fmt.Errorf("rate limit per client must be positive, got %d", c.RateLimitPerClient)
	}
	if c.RateLimitGlobal <= 0 {
		return fmt.Errorf("global rate limit must be positive, got %d", c.RateLimitGlobal)
	}
	if c.BanFirstOffense <= 0 || c.BanSecondOffense <= 0 {
		return fmt.Errorf("ban durations must be positive")
	}

	return nil
}

// IsProduction reports whether the process runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare integers are taken as seconds.
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
