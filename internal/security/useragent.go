package security

import "strings"

// UserAgentFilter rejects requests whose User-Agent matches a deny-list of
// substrings. An empty User-Agent is treated as suspicious and rejected.
type UserAgentFilter struct {
	blocked []string
}

// NewUserAgentFilter builds a filter from the configured deny-list. Patterns
// are matched case-insensitively as substrings.
func NewUserAgentFilter(blocked []string) *UserAgentFilter {
	lowered := make([]string, 0, len(blocked))
	for _, p := range blocked {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &UserAgentFilter{blocked: lowered}
}

// IsAllowed reports whether the User-Agent passes the deny-list. The first
// matching pattern short-circuits to false.
func (f *UserAgentFilter) IsAllowed(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	ua := strings.ToLower(userAgent)
	for _, pattern := range f.blocked {
		if strings.Contains(ua, pattern) {
			return false
		}
	}
	return true
}

// ClientInfo is an informational classification of a User-Agent. It is used
// for analytics only, never for enforcement.
type ClientInfo struct {
	UserAgent string `json:"user_agent"`
	IsBrowser bool   `json:"is_browser"`
	IsBot     bool   `json:"is_bot"`
	Type      string `json:"type"`
}

var (
	browserPatterns = []string{"mozilla", "chrome", "safari", "firefox", "edge", "opera"}
	botPatterns     = []string{"bot", "crawler", "spider", "googlebot", "bingbot"}
	scraperPatterns = []string{"python-requests", "curl", "wget", "scrape"}
)

// Classify inspects a User-Agent and reports what kind of client it looks
// like. The browser and bot pattern sets are evaluated independently.
func Classify(userAgent string) ClientInfo {
	info := ClientInfo{UserAgent: userAgent, Type: "unknown"}
	if userAgent == "" {
		return info
	}
	ua := strings.ToLower(userAgent)

	for _, p := range browserPatterns {
		if strings.Contains(ua, p) {
			info.IsBrowser = true
			info.Type = "browser"
			break
		}
	}
	for _, p := range botPatterns {
		if strings.Contains(ua, p) {
			info.IsBot = true
			info.Type = "bot"
			break
		}
	}
	for _, p := range scraperPatterns {
		if strings.Contains(ua, p) {
			info.Type = "scraper"
			break
		}
	}
	return info
}
