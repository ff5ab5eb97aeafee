// Package rewrite implements the two frame mutators that let several
// downstream clients share one cloned MAC address upstream (spec.md
// §4.3): Upstream substitutes the cloned MAC for outbound
// traffic (and fixes up DHCP so replies come back as broadcast);
// Downstream substitutes the real client MAC back in for
// inbound traffic, using the macnat table built by both rewriters and
// the DHCP sniffer.
//
// Grounded on the teacher's accessor-over-byte-slice idiom (arp.ARP,
// the dhcp4 frame type) generalized from single-purpose packet
// handlers into in-place mutators over a caller-owned buffer that
// never fail. Upstream does not allocate; Downstream does, because
// macnat.Table.LookupByIP returns a fresh copy of the mapped MAC and
// the comparison with the cloned MAC formats both as strings.
package rewrite

import (
	"net"

	"github.com/WikDra/esp-idf-wifi-repeater/arp"
	"github.com/WikDra/esp-idf-wifi-repeater/dhcp4"
	"github.com/WikDra/esp-idf-wifi-repeater/macnat"
	"github.com/WikDra/esp-idf-wifi-repeater/wire"
)

// minARPFrameLen and minIPv4FrameLen are the frame-length floors
// below which the corresponding header fields (spec.md §4.3: IPv4
// needs an Ethernet header + 20-byte IPv4 header = 34; ARP needs an
// Ethernet header + 28-byte ARP packet = 42) aren't guaranteed to be
// present, and the rewrite step for that protocol is skipped.
const (
	minIPv4FrameLen = wire.EthHeaderLen + 20
	minARPFrameLen  = wire.EthHeaderLen + arp.Len
)

// Upstream mutates a frame received on the AP interface from a
// non-primary client before it is forwarded to the STA interface.
// table learns the client's address mapping; cloned is the MAC
// currently impersonating the client upstream. frame is mutated in
// place; Upstream never allocates and never fails.
func Upstream(frame []byte, table *macnat.Table, cloned net.HardwareAddr) {
	eth := wire.Ethernet(frame)
	if !eth.IsValid() {
		return
	}

	switch eth.EtherType() {
	case wire.EtherTypeIPv4:
		if len(frame) >= minIPv4FrameLen {
			upstreamIPv4(eth, table, cloned)
		}
	case wire.EtherTypeARP:
		if len(frame) >= minARPFrameLen {
			upstreamARP(eth, table, cloned)
		}
	}

	eth.SetSrc(cloned)
}

func upstreamIPv4(eth wire.Ethernet, table *macnat.Table, cloned net.HardwareAddr) {
	ip4 := wire.IPv4(eth.Payload())
	if !ip4.IsValid() {
		return
	}
	table.Learn(ip4.Src(), eth.Src())

	if ip4.Protocol() != 17 { // UDP
		return
	}
	udp := wire.UDP(ip4.Payload())
	if !udp.IsValid() || udp.SrcPort() != dhcp4.ClientPort || udp.DstPort() != dhcp4.ServerPort {
		return
	}
	payload := udp.Payload()
	if len(payload) < dhcp4.MinLen {
		return
	}
	dhcp4.DHCP4(payload).SetBroadcast()
	udp.SetChecksumZero()
}

func upstreamARP(eth wire.Ethernet, table *macnat.Table, cloned net.HardwareAddr) {
	pkt := arp.ARP(eth.Payload())
	if !pkt.IsValid() {
		return
	}
	table.Learn(pkt.SrcIP(), pkt.SrcMAC())
	pkt.SetSrcMAC(cloned)
}

// Downstream mutates a frame received on the STA interface before it
// is delivered to the AP interface, when more than one client is
// currently bridged and the destination is not multicast/broadcast
// (spec.md §4.3). table supplies the real MAC for a given destination
// IP; cloned is the MAC currently impersonating clients upstream —
// used to recognize when no rewrite is actually needed.
func Downstream(frame []byte, table *macnat.Table, cloned net.HardwareAddr) {
	eth := wire.Ethernet(frame)
	if !eth.IsValid() {
		return
	}

	switch eth.EtherType() {
	case wire.EtherTypeIPv4:
		if len(frame) >= minIPv4FrameLen {
			downstreamIPv4(eth, table, cloned)
		}
	case wire.EtherTypeARP:
		if len(frame) >= minARPFrameLen {
			downstreamARP(eth, table, cloned)
		}
	}
}

func downstreamIPv4(eth wire.Ethernet, table *macnat.Table, cloned net.HardwareAddr) {
	ip4 := wire.IPv4(eth.Payload())
	if !ip4.IsValid() {
		return
	}
	mac, ok := table.LookupByIP(ip4.Dst())
	if !ok || mac.String() == cloned.String() {
		return
	}
	eth.SetDst(mac)
}

func downstreamARP(eth wire.Ethernet, table *macnat.Table, cloned net.HardwareAddr) {
	pkt := arp.ARP(eth.Payload())
	if !pkt.IsValid() {
		return
	}
	mac, ok := table.LookupByIP(pkt.DstIP())
	if !ok || mac.String() == cloned.String() {
		return
	}
	eth.SetDst(mac)
	pkt.SetDstMAC(mac)
}
