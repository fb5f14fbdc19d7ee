package security

import (
	"testing"
	"time"
)

func TestBanDeniesUntilExpiry(t *testing.T) {
	r := NewMemoryBanRegistry()
	now := time.Now()
	expiry := now.Add(time.Hour)

	r.Ban("203.0.113.7", expiry)

	if !r.IsBanned("203.0.113.7", expiry.Add(-time.Second)) {
		t.Error("should be banned one second before expiry")
	}
	if r.IsBanned("203.0.113.7", expiry.Add(time.Second)) {
		t.Error("should not be banned one second after expiry")
	}
	// The lazy expiry check deletes the entry.
	if got := r.ListActive(now); len(got) != 0 {
		t.Errorf("entry should be removed after expiring check, got %v", got)
	}
}

func TestListActiveDoesNotMutate(t *testing.T) {
	r := NewMemoryBanRegistry()
	now := time.Now()

	r.Ban("203.0.113.1", now.Add(-time.Minute)) // already expired
	r.Ban("203.0.113.2", now.Add(time.Hour))
	r.BanPermanent("203.0.113.3")

	active := r.ListActive(now)
	if len(active) != 2 {
		t.Fatalf("active = %v, want 2 entries", active)
	}

	// The expired entry was filtered from the listing but not deleted.
	r.mu.Lock()
	_, stillThere := r.bans["203.0.113.1"]
	r.mu.Unlock()
	if !stillThere {
		t.Error("ListActive must not delete expired entries")
	}
}

func TestPermanentBanNeverExpires(t *testing.T) {
	r := NewMemoryBanRegistry()

	r.BanPermanent("203.0.113.7")
	if !r.IsBanned("203.0.113.7", time.Now().Add(1000*time.Hour)) {
		t.Error("permanent ban should hold far into the future")
	}
}

func TestUnban(t *testing.T) {
	r := NewMemoryBanRegistry()
	now := time.Now()

	r.Ban("203.0.113.7", now.Add(time.Hour))
	if !r.Unban("203.0.113.7") {
		t.Error("Unban should report true for a banned IP")
	}
	if r.IsBanned("203.0.113.7", now) {
		t.Error("IP should not be banned after Unban")
	}
}

func TestUnbanIdempotent(t *testing.T) {
	r := NewMemoryBanRegistry()

	if r.Unban("203.0.113.99") {
		t.Error("Unban of an unbanned IP should report false")
	}
	if got := r.ListActive(time.Now()); len(got) != 0 {
		t.Errorf("no side effects expected, got %v", got)
	}
}
