// Package wire provides zero-copy byte-slice views over the Ethernet,
// IPv4, and UDP headers that the core operates on. Each type follows the
// teacher's accessor-method-over-byte-slice idiom (see arp.ARP,
// dhcp4.DHCP4): no parsing into a Go struct, no allocation, the slice IS
// the frame.
package wire

import (
	"encoding/binary"
	"net"
)

// EtherType values this core inspects.
const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeARP  uint16 = 0x0806
)

// Ethernet header field offsets.
const (
	EthDstOffset  = 0
	EthSrcOffset  = 6
	EthTypeOffset = 12
	EthHeaderLen  = 14
)

// Ethernet is a view over an Ethernet II frame.
type Ethernet []byte

// IsValid reports whether the buffer is at least long enough to hold an
// Ethernet header.
func (e Ethernet) IsValid() bool {
	return len(e) >= EthHeaderLen
}

// Dst returns the destination hardware address.
func (e Ethernet) Dst() net.HardwareAddr {
	return net.HardwareAddr(e[EthDstOffset : EthDstOffset+6])
}

// Src returns the source hardware address.
func (e Ethernet) Src() net.HardwareAddr {
	return net.HardwareAddr(e[EthSrcOffset : EthSrcOffset+6])
}

// SetSrc overwrites the source hardware address in place.
func (e Ethernet) SetSrc(mac net.HardwareAddr) {
	copy(e[EthSrcOffset:EthSrcOffset+6], mac)
}

// SetDst overwrites the destination hardware address in place.
func (e Ethernet) SetDst(mac net.HardwareAddr) {
	copy(e[EthDstOffset:EthDstOffset+6], mac)
}

// EtherType returns the frame's EtherType field.
func (e Ethernet) EtherType() uint16 {
	return binary.BigEndian.Uint16(e[EthTypeOffset : EthTypeOffset+2])
}

// Payload returns the bytes following the Ethernet header.
func (e Ethernet) Payload() []byte {
	return e[EthHeaderLen:]
}

// IsMulticastMAC reports whether mac has the broadcast/multicast bit
// (bit 0 of octet 0) set. A zero-length address is never multicast.
func IsMulticastMAC(mac net.HardwareAddr) bool {
	return len(mac) > 0 && mac[0]&0x01 != 0
}

// IPv4 field offsets, relative to the start of the IPv4 header.
const (
	ip4IHLOffset    = 0
	ip4ProtoOffset  = 9
	ip4SrcOffset    = 12
	ip4DstOffset    = 16
	ip4MinHeaderLen = 20
)

// IPv4 is a view over an IPv4 header and its payload.
type IPv4 []byte

// IsValid reports whether the buffer is at least long enough to hold a
// minimal (no-options) IPv4 header.
func (p IPv4) IsValid() bool {
	return len(p) >= ip4MinHeaderLen
}

// IHL returns the header length in bytes, decoded from the low nibble of
// the first octet (a count of 32-bit words).
func (p IPv4) IHL() int {
	return int(p[ip4IHLOffset]&0x0f) * 4
}

// Protocol returns the IP protocol number (e.g. 17 for UDP).
func (p IPv4) Protocol() uint8 {
	return p[ip4ProtoOffset]
}

// Src returns the source IPv4 address.
func (p IPv4) Src() net.IP {
	return net.IP(p[ip4SrcOffset : ip4SrcOffset+4])
}

// Dst returns the destination IPv4 address.
func (p IPv4) Dst() net.IP {
	return net.IP(p[ip4DstOffset : ip4DstOffset+4])
}

// Payload returns the bytes following the (possibly option-bearing) IPv4
// header, or nil if IHL claims more bytes than are available.
func (p IPv4) Payload() []byte {
	ihl := p.IHL()
	if ihl < ip4MinHeaderLen || ihl > len(p) {
		return nil
	}
	return p[ihl:]
}

// UDP field offsets, relative to the start of the UDP header.
const (
	udpSrcPortOffset  = 0
	udpDstPortOffset  = 2
	udpLengthOffset   = 4
	udpChecksumOffset = 6
	UDPHeaderLen      = 8
)

// UDP is a view over a UDP header and its payload.
type UDP []byte

// IsValid reports whether the buffer is at least long enough to hold a
// UDP header.
func (u UDP) IsValid() bool {
	return len(u) >= UDPHeaderLen
}

// SrcPort returns the source port.
func (u UDP) SrcPort() uint16 {
	return binary.BigEndian.Uint16(u[udpSrcPortOffset : udpSrcPortOffset+2])
}

// DstPort returns the destination port.
func (u UDP) DstPort() uint16 {
	return binary.BigEndian.Uint16(u[udpDstPortOffset : udpDstPortOffset+2])
}

// SetChecksumZero zeroes the UDP checksum field. RFC 768 permits a zero
// checksum for IPv4 UDP datagrams; this core uses it when it can no
// longer guarantee the checksum is valid after rewriting the payload.
func (u UDP) SetChecksumZero() {
	binary.BigEndian.PutUint16(u[udpChecksumOffset:udpChecksumOffset+2], 0)
}

// Payload returns the bytes following the UDP header.
func (u UDP) Payload() []byte {
	return u[UDPHeaderLen:]
}

// IPv4ToUint32 converts an IPv4 address to a uint32 in network byte
// order numeric form, as used by the MAC-NAT table's key space. Returns
// 0 if ip is not a valid IPv4 address.
func IPv4ToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}

// Uint32ToIPv4 is the inverse of IPv4ToUint32.
func Uint32ToIPv4(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}
