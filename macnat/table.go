// Package macnat implements the fixed-capacity IPv4-to-hardware-address
// table that lets several downstream clients share a single cloned MAC
// address upstream (spec.md §4.1). It is pure data: no I/O, no
// goroutines, and learning never fails or surfaces an error — it is
// best-effort by design.
//
// The table is grounded on the teacher's dense, lock-guarded
// MACTable/HostTable (session.go, table_test.go): a small fixed array
// scanned linearly rather than a hash map, because the ingress hot path
// benefits from a cache-line-sized linear scan and LRU eviction is
// simpler to reason about on a dense array (spec.md §9).
package macnat

import (
	"net"
	"sync"
	"time"

	"github.com/WikDra/esp-idf-wifi-repeater/wire"
)

// DefaultCapacity is the reference table size (spec.md §3: N = 8).
const DefaultCapacity = 8

type entry struct {
	used     bool
	ip       uint32
	mac      [6]byte
	lastSeen time.Time
}

// Table is the MAC-NAT table. The zero value is not usable; construct
// one with New.
type Table struct {
	mu      sync.Mutex
	entries []entry
	now     func() time.Time // overridable for deterministic eviction tests
}

// New creates a table with the reference capacity (DefaultCapacity).
func New() *Table {
	return NewCapacity(DefaultCapacity)
}

// NewCapacity creates a table with an explicit capacity. Implementers
// may parameterize N; the reference value is 8 and spec.md §9 suggests
// N <= 16 is plenty.
func NewCapacity(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		entries: make([]entry, capacity),
		now:     time.Now,
	}
}

// Learn records that ip is reachable via mac (spec.md §4.1).
//
// It is a no-op if ip is the zero address or mac has the
// broadcast/multicast bit set. Four cases, checked in order:
//
//	(a) an entry for this ip already has this mac -> no-op, and
//	    critically the timestamp is NOT refreshed (hot-path
//	    optimization; verified by TestLearnHotPathDoesNotRefreshTimestamp).
//	(b) an entry for this ip has a different mac -> overwrite the mac
//	    and refresh the timestamp (the IP was reassigned).
//	(c) an entry for this mac has a different ip -> update the ip and
//	    refresh the timestamp (DHCP renewal).
//	(d) otherwise insert into a free slot, evicting the
//	    least-recently-seen used entry if the table is full.
func (t *Table) Learn(ip net.IP, mac net.HardwareAddr) {
	key := wire.IPv4ToUint32(ip)
	if key == 0 || wire.IsMulticastMAC(mac) {
		return
	}
	var macKey [6]byte
	copy(macKey[:], mac)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	// (a)/(b): scan for an existing entry with this IP first, in
	// insertion order, so IP-match always wins over MAC-match when both
	// could apply to different entries.
	for i := range t.entries {
		e := &t.entries[i]
		if !e.used || e.ip != key {
			continue
		}
		if e.mac == macKey {
			return // (a) hot path: exact match, nothing to update
		}
		e.mac = macKey // (b) IP reassigned to a new device
		e.lastSeen = now
		return
	}

	// (c): an entry already tracks this MAC under a different IP.
	for i := range t.entries {
		e := &t.entries[i]
		if e.used && e.mac == macKey {
			e.ip = key
			e.lastSeen = now
			return
		}
	}

	// (d): insert into a free slot, or evict the oldest used entry.
	slot := -1
	for i := range t.entries {
		if !t.entries[i].used {
			slot = i
			break
		}
	}
	if slot == -1 {
		slot = t.oldestLocked()
	}
	t.entries[slot] = entry{used: true, ip: key, mac: macKey, lastSeen: now}
}

// oldestLocked returns the index of the used entry with the smallest
// lastSeen. Callers must hold t.mu. The table is assumed non-empty of
// used entries (capacity > 0).
func (t *Table) oldestLocked() int {
	oldest := 0
	for i := range t.entries {
		if t.entries[i].lastSeen.Before(t.entries[oldest].lastSeen) {
			oldest = i
		}
	}
	return oldest
}

// LookupByIP returns the hardware address mapped to ip, and whether an
// entry was found.
func (t *Table) LookupByIP(ip net.IP) (net.HardwareAddr, bool) {
	key := wire.IPv4ToUint32(ip)
	if key == 0 {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		e := &t.entries[i]
		if e.used && e.ip == key {
			mac := make(net.HardwareAddr, 6)
			copy(mac, e.mac[:])
			return mac, true
		}
	}
	return nil, false
}

// Clear marks every entry unused. Called when MAC cloning resets (end
// of a bridging session, spec.md §4.5 RESTORE step 6).
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		t.entries[i] = entry{}
	}
}

// Len reports the number of used entries. Exposed for status reporting
// and tests; not part of the lookup/learn hot path.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.entries {
		if t.entries[i].used {
			n++
		}
	}
	return n
}
