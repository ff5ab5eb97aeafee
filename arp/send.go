package arp

import (
	"net"

	"github.com/WikDra/esp-idf-wifi-repeater/wire"
)

// EthernetBroadcast is the all-ones Ethernet destination address.
var EthernetBroadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// BuildAnnouncement builds a gratuitous ARP announcement frame: an ARP
// request broadcast on the local link with both sender and target
// protocol addresses set to ip, per RFC 5227 §3's description of an ARP
// Announcement (identical to an ARP Probe, except sender and target IP
// are both the host's newly selected address). A host may legitimately
// begin using ip immediately after the first announcement is sent;
// callers wanting the full RFC 5227 cadence (ANNOUNCE_NUM repeats,
// ANNOUNCE_INTERVAL apart) are responsible for transmitting the
// returned frame repeatedly.
//
// This core uses it to announce the AP interface's management address
// after the bridging state machine (re)configures it (spec.md §4.5),
// so that downstream clients with a stale ARP cache entry for the old
// address pick it up immediately rather than timing out.
func BuildAnnouncement(mac net.HardwareAddr, ip net.IP) (wire.Ethernet, error) {
	frame := make(wire.Ethernet, wire.EthHeaderLen+Len)
	frame.SetDst(EthernetBroadcast)
	frame.SetSrc(mac)
	putEtherType(frame, wire.EtherTypeARP)

	if _, err := MarshalBinary(frame[wire.EthHeaderLen:], OperationRequest, mac, ip, EthernetBroadcast, ip); err != nil {
		return nil, err
	}
	return frame, nil
}

func putEtherType(frame wire.Ethernet, etherType uint16) {
	frame[wire.EthTypeOffset] = byte(etherType >> 8)
	frame[wire.EthTypeOffset+1] = byte(etherType)
}
