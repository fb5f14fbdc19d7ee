package security

import (
	"sort"
	"sync"
	"time"
)

// BanRegistry tracks banned IPs. Implementations must be safe for
// concurrent use.
type BanRegistry interface {
	// IsBanned reports whether the IP is banned at now. A temporary entry
	// whose expiry has passed is deleted during the check (lazy expiry).
	IsBanned(ip string, now time.Time) bool
	// Ban installs or replaces a temporary ban lasting until the given time.
	Ban(ip string, until time.Time)
	// BanPermanent installs a ban that never expires.
	BanPermanent(ip string)
	// Unban removes a ban, reporting whether one existed.
	Unban(ip string) bool
	// ListActive returns the IPs banned at now. Expired entries are
	// filtered from the result but not deleted: a read-only listing must
	// not mutate state.
	ListActive(now time.Time) []string
}

// banEntry is an unban deadline; permanent bans have Permanent set and a
// zero Until.
type banEntry struct {
	Until     time.Time
	Permanent bool
}

// MemoryBanRegistry is the in-process BanRegistry. State is per instance;
// multi-instance deployments wanting shared bans should use
// RedisBanRegistry instead.
type MemoryBanRegistry struct {
	mu   sync.Mutex
	bans map[string]banEntry
}

// NewMemoryBanRegistry creates an empty in-memory registry.
func NewMemoryBanRegistry() *MemoryBanRegistry {
	return &MemoryBanRegistry{bans: make(map[string]banEntry)}
}

func (r *MemoryBanRegistry) IsBanned(ip string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.bans[ip]
	if !ok {
		return false
	}
	if !entry.Permanent && !entry.Until.After(now) {
		delete(r.bans, ip)
		return false
	}
	return true
}

func (r *MemoryBanRegistry) Ban(ip string, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bans[ip] = banEntry{Until: until}
}

func (r *MemoryBanRegistry) BanPermanent(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bans[ip] = banEntry{Permanent: true}
}

func (r *MemoryBanRegistry) Unban(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bans[ip]; !ok {
		return false
	}
	delete(r.bans, ip)
	return true
}

func (r *MemoryBanRegistry) ListActive(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := make([]string, 0, len(r.bans))
	for ip, entry := range r.bans {
		if entry.Permanent || entry.Until.After(now) {
			active = append(active, ip)
		}
	}
	sort.Strings(active)
	return active
}
