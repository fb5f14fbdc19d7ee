package security

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mgarrido/lumicat/internal/logging"
)

// Detection thresholds and heuristic weights.
const (
	historyRetention = time.Hour

	timingMinRecords   = 10
	timingMaxRecords   = 20
	timingMeanMax      = 0.2  // seconds
	timingStdDevMax    = 0.05 // seconds
	timingPoints       = 30
	sequentialMinCodes = 20
	sequentialLookback = 50
	sequentialMaxStep  = 100
	sequentialRatio    = 0.8
	sequentialPoints   = 40
	noRefererPoints    = 10
	highFreqWindow     = 60 * time.Second
	highFreqThreshold  = 50
	highFreqPoints     = 20

	suspiciousScore = 70
	banScore        = 90
	honeypotStrikes = 2
)

var productCodePattern = regexp.MustCompile(`/products/(\d+)`)

// RequestRecord is one analyzed request in an identity's rolling history.
type RequestRecord struct {
	At   time.Time
	Path string
}

// Analysis is the outcome of scoring a single request.
type Analysis struct {
	Score      int            `json:"score"`
	Suspicious bool           `json:"suspicious"`
	Reasons    []string       `json:"reasons"`
	Patterns   map[string]int `json:"patterns"`
}

// Detector maintains rolling per-identity request histories and computes a
// 0-100 suspicion score from four heuristics. Scores at or above the ban
// threshold escalate to a temporary IP ban; repeated honeypot probes to a
// permanent one.
type Detector struct {
	enabled         bool
	banFirstOffense time.Duration
	honeypotPaths   []string
	bans            BanRegistry
	logger          *zap.Logger

	mu            sync.Mutex
	history       map[string][]RequestRecord
	patternScores map[string]map[string]int
	honeypotHits  map[string]int
}

// NewDetector creates a detector writing bans into the given registry.
func NewDetector(enabled bool, banFirstOffense time.Duration, honeypotPaths []string, bans BanRegistry, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		enabled:         enabled,
		banFirstOffense: banFirstOffense,
		honeypotPaths:   honeypotPaths,
		bans:            bans,
		logger:          logger,
		history:         make(map[string][]RequestRecord),
		patternScores:   make(map[string]map[string]int),
		honeypotHits:    make(map[string]int),
	}
}

// Bans exposes the registry backing this detector.
func (d *Detector) Bans() BanRegistry { return d.bans }

// Analyze records the request in the identity's history, prunes stale
// entries across all identities, and scores the request.
func (d *Detector) Analyze(identity, path, referer string, now time.Time) Analysis {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history[identity] = append(d.history[identity], RequestRecord{At: now, Path: path})
	d.pruneLocked(now)

	history := d.history[identity]
	analysis := Analysis{Patterns: make(map[string]int)}

	if perfectTiming(history) {
		analysis.Score += timingPoints
		analysis.Reasons = append(analysis.Reasons, "perfect timing (bot-like)")
		analysis.Patterns["perfect_timing"] = timingPoints
	}
	if sequentialAccess(history) {
		analysis.Score += sequentialPoints
		analysis.Reasons = append(analysis.Reasons, "sequential product access")
		analysis.Patterns["sequential_access"] = sequentialPoints
	}
	if referer == "" {
		analysis.Score += noRefererPoints
		analysis.Reasons = append(analysis.Reasons, "no referer header")
		analysis.Patterns["no_referer"] = noRefererPoints
	}
	if recentCount(history, now) > highFreqThreshold {
		analysis.Score += highFreqPoints
		analysis.Reasons = append(analysis.Reasons, "high request frequency")
		analysis.Patterns["high_frequency"] = highFreqPoints
	}

	if analysis.Score > 100 {
		analysis.Score = 100
	}
	analysis.Suspicious = analysis.Score >= suspiciousScore

	// Analytics-only ledger; never read back to gate decisions.
	for pattern, points := range analysis.Patterns {
		acc := d.patternScores[identity]
		if acc == nil {
			acc = make(map[string]int)
			d.patternScores[identity] = acc
		}
		acc[pattern] += points
	}

	if analysis.Suspicious {
		d.logger.Warn("scraping detected",
			logging.Event("scraping_detected"),
			logging.Identity(identity),
			logging.Score(analysis.Score),
			logging.Reasons(analysis.Reasons))
	}

	return analysis
}

// IsSuspicious checks and updates ban state, then analyzes the request.
// A banned IP short-circuits to true without analysis. A score at or above
// the ban threshold installs a temporary ban keyed by the request IP, even
// when scoring used an API-key identity.
func (d *Detector) IsSuspicious(identity, path, referer, remoteAddr string, now time.Time) bool {
	if !d.enabled {
		return false
	}

	ip := RemoteIP(remoteAddr)
	if d.bans.IsBanned(ip, now) {
		return true
	}

	analysis := d.Analyze(identity, path, referer, now)

	if analysis.Score >= banScore {
		until := now.Add(d.banFirstOffense)
		d.bans.Ban(ip, until)
		d.logger.Warn("ip banned",
			logging.Event("ip_banned"),
			logging.RemoteIP(ip),
			logging.Score(analysis.Score),
			zap.Time("until", until))
	}

	return analysis.Suspicious
}

// IsHoneypotAccess reports whether the path hits a trap endpoint and counts
// the access. Two hits from the same IP install a permanent ban. Returns
// true on any match regardless of escalation.
func (d *Detector) IsHoneypotAccess(path, remoteAddr string) bool {
	matched := false
	for _, trap := range d.honeypotPaths {
		if strings.HasPrefix(path, trap) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	ip := RemoteIP(remoteAddr)

	d.mu.Lock()
	d.honeypotHits[ip]++
	hits := d.honeypotHits[ip]
	d.mu.Unlock()

	d.logger.Warn("honeypot accessed",
		logging.Event("honeypot_access"),
		logging.Path(path),
		logging.RemoteIP(ip),
		zap.Int("hits", hits))

	if hits >= honeypotStrikes {
		d.bans.BanPermanent(ip)
		d.logger.Error("ip permanently banned for honeypot probing",
			logging.Event("ip_banned_permanent"),
			logging.RemoteIP(ip))
	}

	return true
}

// PatternScores returns a copy of the identity's accumulated pattern scores.
func (d *Detector) PatternScores(identity string) map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.patternScores[identity]))
	for k, v := range d.patternScores[identity] {
		out[k] = v
	}
	return out
}

// pruneLocked drops history entries older than the retention window across
// all identities. Identities whose history empties are removed entirely,
// together with their pattern ledger, so memory stays bounded.
func (d *Detector) pruneLocked(now time.Time) {
	cutoff := now.Add(-historyRetention)
	for identity, records := range d.history {
		kept := records[:0]
		for _, rec := range records {
			if rec.At.After(cutoff) {
				kept = append(kept, rec)
			}
		}
		if len(kept) == 0 {
			delete(d.history, identity)
			delete(d.patternScores, identity)
			continue
		}
		d.history[identity] = kept
	}
}

// perfectTiming flags inter-arrival intervals too fast and too regular for
// a human, computed over the most recent records.
func perfectTiming(history []RequestRecord) bool {
	if len(history) < timingMinRecords {
		return false
	}

	recent := history
	if len(recent) > timingMaxRecords {
		recent = recent[len(recent)-timingMaxRecords:]
	}

	intervals := make([]float64, 0, len(recent)-1)
	for i := 1; i < len(recent); i++ {
		intervals = append(intervals, recent[i].At.Sub(recent[i-1].At).Seconds())
	}
	if len(intervals) == 0 {
		return false
	}

	var sum float64
	for _, iv := range intervals {
		sum += iv
	}
	mean := sum / float64(len(intervals))
	if mean >= timingMeanMax {
		return false
	}

	var variance float64
	for _, iv := range intervals {
		variance += (iv - mean) * (iv - mean)
	}
	variance /= float64(len(intervals))

	return math.Sqrt(variance) < timingStdDevMax
}

// sequentialAccess flags enumeration of product detail endpoints by
// near-consecutive numeric codes.
func sequentialAccess(history []RequestRecord) bool {
	if len(history) < sequentialMinCodes {
		return false
	}

	recent := history
	if len(recent) > sequentialLookback {
		recent = recent[len(recent)-sequentialLookback:]
	}

	codes := make([]int64, 0, len(recent))
	for _, rec := range recent {
		m := productCodePattern.FindStringSubmatch(rec.Path)
		if m == nil {
			continue
		}
		code, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		codes = append(codes, code)
	}
	if len(codes) < sequentialMinCodes {
		return false
	}

	smallSteps := 0
	for i := 1; i < len(codes); i++ {
		diff := codes[i] - codes[i-1]
		if diff >= 0 && diff <= sequentialMaxStep {
			smallSteps++
		}
	}
	total := len(codes) - 1
	return float64(smallSteps)/float64(total) > sequentialRatio
}

func recentCount(history []RequestRecord, now time.Time) int {
	cutoff := now.Add(-highFreqWindow)
	count := 0
	for _, rec := range history {
		if rec.At.After(cutoff) {
			count++
		}
	}
	return count
}
