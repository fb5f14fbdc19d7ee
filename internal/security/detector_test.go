package security

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestDetector() *Detector {
	return NewDetector(true, time.Hour, []string{
		"/api/sitemap.xml",
		"/api/products/export",
		"/api/all-products",
		"/sitemap.xml",
		"/api/.well-known/",
	}, NewMemoryBanRegistry(), zap.NewNop())
}

func TestPerfectTimingTriggers(t *testing.T) {
	d := newTestDetector()
	base := time.Now()

	var last Analysis
	for i := 0; i < 10; i++ {
		last = d.Analyze("ip:203.0.113.7", "/v1/internal/products", "http://example.com", base.Add(time.Duration(i)*50*time.Millisecond))
	}

	if _, ok := last.Patterns["perfect_timing"]; !ok {
		t.Errorf("10 requests at exact 50ms spacing should flag perfect timing, got %v", last.Patterns)
	}
	if last.Patterns["perfect_timing"] != timingPoints {
		t.Errorf("perfect_timing points = %d, want %d", last.Patterns["perfect_timing"], timingPoints)
	}
}

func TestJitteredTimingDoesNotTrigger(t *testing.T) {
	d := newTestDetector()
	base := time.Now()

	// Alternating 10ms/150ms gaps: mean stays under 200ms but the standard
	// deviation is well above 50ms.
	offset := time.Duration(0)
	var last Analysis
	for i := 0; i < 10; i++ {
		last = d.Analyze("ip:203.0.113.7", "/v1/internal/products", "http://example.com", base.Add(offset))
		if i%2 == 0 {
			offset += 10 * time.Millisecond
		} else {
			offset += 150 * time.Millisecond
		}
	}

	if _, ok := last.Patterns["perfect_timing"]; ok {
		t.Error("jittered spacing should not flag perfect timing")
	}
}

func TestSequentialAccessTriggers(t *testing.T) {
	d := newTestDetector()
	base := time.Now()

	var last Analysis
	for i := 0; i < 25; i++ {
		path := fmt.Sprintf("/v1/internal/products/%d", 1000+i)
		last = d.Analyze("ip:203.0.113.7", path, "http://example.com", base.Add(time.Duration(i)*time.Second))
	}

	if _, ok := last.Patterns["sequential_access"]; !ok {
		t.Errorf("consecutive product codes should flag sequential access, got %v", last.Patterns)
	}
	if _, ok := last.Patterns["perfect_timing"]; ok {
		t.Error("one-second spacing should not flag perfect timing")
	}
}

func TestRandomAccessDoesNotTrigger(t *testing.T) {
	d := newTestDetector()
	base := time.Now()

	var last Analysis
	for i := 0; i < 25; i++ {
		code := 1_000_000 + i
		if i%2 == 1 {
			code = 90_000_000 + i
		}
		path := fmt.Sprintf("/v1/internal/products/%d", code)
		last = d.Analyze("ip:203.0.113.7", path, "http://example.com", base.Add(time.Duration(i)*time.Second))
	}

	if _, ok := last.Patterns["sequential_access"]; ok {
		t.Error("widely scattered codes should not flag sequential access")
	}
}

func TestNoRefererScores(t *testing.T) {
	d := newTestDetector()

	analysis := d.Analyze("ip:203.0.113.7", "/v1/internal/products", "", time.Now())
	if analysis.Patterns["no_referer"] != noRefererPoints {
		t.Errorf("missing referer should score %d, got %v", noRefererPoints, analysis.Patterns)
	}
	if analysis.Suspicious {
		t.Error("no-referer alone must not be suspicious")
	}
}

func TestHighFrequencyTriggers(t *testing.T) {
	d := newTestDetector()
	base := time.Now()

	// 55 requests at 500ms spacing all land inside the trailing minute.
	var last Analysis
	for i := 0; i < 55; i++ {
		last = d.Analyze("ip:203.0.113.7", "/v1/internal/families", "http://example.com", base.Add(time.Duration(i)*500*time.Millisecond))
	}
	if _, ok := last.Patterns["high_frequency"]; !ok {
		t.Errorf("more than 50 requests in 60s should flag high frequency, got %v", last.Patterns)
	}
}

func TestScoreBounds(t *testing.T) {
	d := newTestDetector()
	base := time.Now()

	// Drive every heuristic at once: sequential codes, 10ms spacing,
	// no referer, far more than 50 requests per minute.
	for i := 0; i < 60; i++ {
		path := fmt.Sprintf("/v1/internal/products/%d", 5000+i)
		analysis := d.Analyze("apikey:cafe0123deadbeef", path, "", base.Add(time.Duration(i)*10*time.Millisecond))
		if analysis.Score < 0 || analysis.Score > 100 {
			t.Fatalf("score = %d, want within [0, 100]", analysis.Score)
		}
	}
}

func TestIsSuspiciousBansIPOnHighScore(t *testing.T) {
	d := newTestDetector()
	base := time.Now()

	suspicious := false
	for i := 0; i < 60; i++ {
		path := fmt.Sprintf("/v1/internal/products/%d", 5000+i)
		if d.IsSuspicious("apikey:cafe0123deadbeef", path, "", "203.0.113.7:5000", base.Add(time.Duration(i)*10*time.Millisecond)) {
			suspicious = true
		}
	}
	if !suspicious {
		t.Fatal("a full-throttle enumeration run should be flagged")
	}

	// The ban is keyed by the request IP even though scoring used the
	// API key identity.
	if !d.Bans().IsBanned("203.0.113.7", base.Add(time.Second)) {
		t.Error("IP should be banned after the score crossed the ban threshold")
	}

	// Any identity from the banned IP short-circuits to suspicious.
	if !d.IsSuspicious("ip:203.0.113.7", "/health", "http://example.com", "203.0.113.7:6000", base.Add(2*time.Second)) {
		t.Error("banned IP should be rejected regardless of path or identity")
	}
}

func TestIsSuspiciousDisabled(t *testing.T) {
	d := NewDetector(false, time.Hour, nil, NewMemoryBanRegistry(), zap.NewNop())

	for i := 0; i < 100; i++ {
		path := fmt.Sprintf("/v1/internal/products/%d", 5000+i)
		if d.IsSuspicious("ip:203.0.113.7", path, "", "203.0.113.7:5000", time.Now()) {
			t.Fatal("disabled detector must never flag")
		}
	}
}

func TestHoneypotTwoStrikes(t *testing.T) {
	d := newTestDetector()

	if !d.IsHoneypotAccess("/api/sitemap.xml", "203.0.113.7:1234") {
		t.Fatal("honeypot path should match")
	}
	if d.Bans().IsBanned("203.0.113.7", time.Now()) {
		t.Error("first honeypot hit must not ban")
	}

	if !d.IsHoneypotAccess("/api/all-products", "203.0.113.7:1234") {
		t.Fatal("second honeypot path should match")
	}
	if !d.Bans().IsBanned("203.0.113.7", time.Now().Add(1000*time.Hour)) {
		t.Error("second honeypot hit should install a permanent ban")
	}
}

func TestHoneypotPrefixMatch(t *testing.T) {
	d := newTestDetector()

	if !d.IsHoneypotAccess("/api/.well-known/security.txt", "203.0.113.7:1234") {
		t.Error("paths under a honeypot prefix should match")
	}
	if d.IsHoneypotAccess("/v1/internal/products", "203.0.113.7:1234") {
		t.Error("regular data path must not match")
	}
}

func TestHistoryPruned(t *testing.T) {
	d := newTestDetector()
	base := time.Now()

	d.Analyze("ip:203.0.113.7", "/v1/internal/products", "", base)
	if len(d.PatternScores("ip:203.0.113.7")) == 0 {
		t.Fatal("expected a pattern ledger entry before pruning")
	}

	// A later request from another identity prunes everyone's stale
	// history, and the emptied identity's ledger with it.
	d.Analyze("ip:198.51.100.9", "/v1/internal/products", "", base.Add(2*time.Hour))
	if len(d.PatternScores("ip:203.0.113.7")) != 0 {
		t.Error("stale identity state should be pruned after the retention window")
	}
}

func TestPatternScoresAccumulate(t *testing.T) {
	d := newTestDetector()
	base := time.Now()

	d.Analyze("ip:203.0.113.7", "/v1/internal/products", "", base)
	d.Analyze("ip:203.0.113.7", "/v1/internal/products", "", base.Add(time.Second))

	scores := d.PatternScores("ip:203.0.113.7")
	if scores["no_referer"] != 2*noRefererPoints {
		t.Errorf("no_referer accumulated = %d, want %d", scores["no_referer"], 2*noRefererPoints)
	}
}
