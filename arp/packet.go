// Package arp provides a zero-copy view over ARP packets and the
// helpers this core needs to send gratuitous announcements. It keeps
// the teacher's (github.com/irai/packet/arp) byte-slice accessor idiom
// for the frame type itself; the teacher's active network-scanning and
// ARP-spoofing machinery (handler.go's ScanNetwork/probeOnlineLoop/
// StateHunt) has no home in this core, which never spoofs or scans —
// see DESIGN.md.
package arp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Operation values.
const (
	OperationRequest = 1
	OperationReply   = 2
)

const (
	ethernetHType = 1
	ipv4Proto     = 0x0800
)

// Len is the wire length of an ARP packet with 6-octet hardware
// addresses and 4-octet protocol addresses (header + 2 MACs + 2 IPs).
const Len = 8 + 2*6 + 2*4

// ARP is a memory-mapped view over an ARP packet (the bytes following
// the Ethernet header).
type ARP []byte

// IsValid reports whether b looks like an Ethernet/IPv4 ARP packet.
func (b ARP) IsValid() bool {
	if len(b) < Len {
		return false
	}
	return b.HType() == ethernetHType && b.Proto() == ipv4Proto && b.HLen() == 6 && b.PLen() == 4
}

func (b ARP) HType() uint16 { return binary.BigEndian.Uint16(b[0:2]) }
func (b ARP) Proto() uint16 { return binary.BigEndian.Uint16(b[2:4]) }
func (b ARP) HLen() uint8   { return b[4] }
func (b ARP) PLen() uint8   { return b[5] }

func (b ARP) Operation() uint16 {
	return binary.BigEndian.Uint16(b[6:8])
}

// SrcMAC returns the sender hardware address (SHA).
func (b ARP) SrcMAC() net.HardwareAddr { return net.HardwareAddr(b[8:14]) }

// SrcIP returns the sender protocol address (SPA).
func (b ARP) SrcIP() net.IP { return net.IP(b[14:18]) }

// DstMAC returns the target hardware address (THA).
func (b ARP) DstMAC() net.HardwareAddr { return net.HardwareAddr(b[18:24]) }

// DstIP returns the target protocol address (TPA).
func (b ARP) DstIP() net.IP { return net.IP(b[24:28]) }

// SetSrcMAC overwrites the sender hardware address in place. Used by
// the rewrite package to substitute the cloned client MAC for the real
// client MAC on upstream ARP traffic (spec.md §4.3).
func (b ARP) SetSrcMAC(mac net.HardwareAddr) {
	copy(b[8:14], mac)
}

// SetDstMAC overwrites the target hardware address in place. Used by
// the rewrite package to substitute a MAC-NAT-mapped real MAC for the
// cloned MAC on downstream ARP traffic.
func (b ARP) SetDstMAC(mac net.HardwareAddr) {
	copy(b[18:24], mac)
}

func (b ARP) String() string {
	return fmt.Sprintf("op=%d srcMAC=%s srcIP=%s dstMAC=%s dstIP=%s",
		b.Operation(), b.SrcMAC(), b.SrcIP(), b.DstMAC(), b.DstIP())
}

// MarshalBinary writes an ARP packet into b (which must have capacity
// for Len bytes; pass nil to allocate). operation is OperationRequest
// or OperationReply.
func MarshalBinary(b []byte, operation uint16, srcMAC net.HardwareAddr, srcIP net.IP, dstMAC net.HardwareAddr, dstIP net.IP) (ARP, error) {
	if b == nil {
		b = make([]byte, Len)
	}
	if cap(b) < Len {
		return nil, fmt.Errorf("arp: marshal buffer too small: %d < %d", cap(b), Len)
	}
	b = b[:Len]

	binary.BigEndian.PutUint16(b[0:2], ethernetHType)
	binary.BigEndian.PutUint16(b[2:4], ipv4Proto)
	b[4] = 6
	b[5] = 4
	binary.BigEndian.PutUint16(b[6:8], operation)
	copy(b[8:14], srcMAC)
	copy(b[14:18], srcIP.To4())
	copy(b[18:24], dstMAC)
	copy(b[24:28], dstIP.To4())
	return b, nil
}
