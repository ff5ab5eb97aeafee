package macnat

import (
	"net"
	"testing"
	"time"
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

func TestLearnInsertAndLookup(t *testing.T) {
	tbl := New()
	ip := net.IPv4(10, 0, 0, 21)
	mac := mustMAC("ba:bb:bb:bb:bb:02")

	tbl.Learn(ip, mac)

	got, ok := tbl.LookupByIP(ip)
	if !ok {
		t.Fatalf("LookupByIP() not found after Learn()")
	}
	if got.String() != mac.String() {
		t.Errorf("LookupByIP() = %s, want %s", got, mac)
	}
	if n := tbl.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
}

func TestLearnIgnoresZeroIPAndMulticastMAC(t *testing.T) {
	tbl := New()

	tbl.Learn(net.IPv4zero, mustMAC("aa:aa:aa:aa:aa:01"))
	if tbl.Len() != 0 {
		t.Errorf("Learn() with zero IP inserted an entry")
	}

	tbl.Learn(net.IPv4(10, 0, 0, 5), mustMAC("01:00:5e:00:00:01"))
	if tbl.Len() != 0 {
		t.Errorf("Learn() with multicast MAC inserted an entry")
	}
}

func TestLearnHotPathDoesNotRefreshTimestamp(t *testing.T) {
	tbl := New()
	ip := net.IPv4(192, 168, 1, 1)
	mac := mustMAC("aa:aa:aa:aa:aa:01")

	clock := time.Unix(1000, 0)
	tbl.now = func() time.Time { return clock }
	tbl.Learn(ip, mac)

	firstSeen := tbl.entries[0].lastSeen

	// Advance the clock and learn the identical (ip, mac) pair again:
	// case (a) must not refresh the timestamp.
	clock = clock.Add(time.Hour)
	tbl.Learn(ip, mac)

	if !tbl.entries[0].lastSeen.Equal(firstSeen) {
		t.Errorf("Learn() refreshed timestamp on an identical (ip, mac) pair")
	}
}

func TestLearnIPReassignedOverwritesMAC(t *testing.T) {
	tbl := New()
	ip := net.IPv4(192, 168, 1, 1)

	tbl.Learn(ip, mustMAC("aa:aa:aa:aa:aa:01"))
	tbl.Learn(ip, mustMAC("aa:aa:aa:aa:aa:02"))

	got, _ := tbl.LookupByIP(ip)
	if got.String() != "aa:aa:aa:aa:aa:02" {
		t.Errorf("LookupByIP() = %s, want aa:aa:aa:aa:aa:02 after reassignment", got)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (overwrite, not insert)", tbl.Len())
	}
}

func TestLearnDHCPRenewalUpdatesIP(t *testing.T) {
	tbl := New()
	mac := mustMAC("aa:aa:aa:aa:aa:01")

	tbl.Learn(net.IPv4(192, 168, 1, 1), mac)
	tbl.Learn(net.IPv4(192, 168, 1, 2), mac)

	if _, ok := tbl.LookupByIP(net.IPv4(192, 168, 1, 1)); ok {
		t.Errorf("old IP still mapped after renewal")
	}
	got, ok := tbl.LookupByIP(net.IPv4(192, 168, 1, 2))
	if !ok || got.String() != mac.String() {
		t.Errorf("LookupByIP(new ip) = %s, %v; want %s, true", got, ok, mac)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (update, not insert)", tbl.Len())
	}
}

func TestEvictionIsLRU(t *testing.T) {
	tbl := NewCapacity(2)
	clock := time.Unix(0, 0)
	tbl.now = func() time.Time { return clock }

	ipA, macA := net.IPv4(10, 0, 0, 1), mustMAC("aa:aa:aa:aa:aa:01")
	ipB, macB := net.IPv4(10, 0, 0, 2), mustMAC("aa:aa:aa:aa:aa:02")
	ipC, macC := net.IPv4(10, 0, 0, 3), mustMAC("aa:aa:aa:aa:aa:03")

	tbl.Learn(ipA, macA)
	clock = clock.Add(time.Second)
	tbl.Learn(ipB, macB)
	clock = clock.Add(time.Second)

	// Table is at capacity; ipA is oldest and must be evicted.
	tbl.Learn(ipC, macC)

	if _, ok := tbl.LookupByIP(ipA); ok {
		t.Errorf("oldest entry (ipA) survived eviction")
	}
	if _, ok := tbl.LookupByIP(ipB); !ok {
		t.Errorf("newer entry (ipB) was evicted instead of the oldest")
	}
	if _, ok := tbl.LookupByIP(ipC); !ok {
		t.Errorf("newly-learned entry (ipC) missing")
	}
}

func TestClear(t *testing.T) {
	tbl := New()
	tbl.Learn(net.IPv4(10, 0, 0, 1), mustMAC("aa:aa:aa:aa:aa:01"))
	tbl.Clear()

	if tbl.Len() != 0 {
		t.Errorf("Len() = %d after Clear(), want 0", tbl.Len())
	}
	if _, ok := tbl.LookupByIP(net.IPv4(10, 0, 0, 1)); ok {
		t.Errorf("LookupByIP() found an entry after Clear()")
	}
}

func TestLookupByIPNotFound(t *testing.T) {
	tbl := New()
	if _, ok := tbl.LookupByIP(net.IPv4(10, 0, 0, 1)); ok {
		t.Errorf("LookupByIP() on empty table returned found=true")
	}
}
