package dhcp4

import (
	"encoding/binary"
	"net"
)

// ServerPort and ClientPort are the well-known DHCPv4 UDP ports.
const (
	ServerPort = 67
	ClientPort = 68
)

// Ack is the information this core needs out of a sniffed DHCP ACK:
// the address handed to a downstream client, the subnet it lives in,
// the upstream gateway, and the client's hardware address (fed into
// the MAC-NAT table).
type Ack struct {
	ClientIP net.IP
	ClientMAC net.HardwareAddr
	Mask      net.IPMask
	Gateway   net.IP
}

// SniffAck inspects a DHCP message for a server-to-client ACK and, if
// found, extracts the fields this core needs (spec.md §4.2 steps 1-4).
// payload is the DHCP message itself (the UDP payload); callers are
// expected to have already confirmed UDP src/dst ports are 67/68 and
// len(payload) is large enough before calling this.
//
// Returns ok=false for anything that isn't a well-formed BOOTREPLY ACK:
// malformed frames are silently skipped, per spec.md §7.
func SniffAck(payload []byte) (ack Ack, ok bool) {
	p := DHCP4(payload)
	if !p.IsValid() {
		return Ack{}, false
	}
	if p.OpCode() != BootReply {
		return Ack{}, false
	}

	options := p.ParseOptions()
	mt, present := options[OptionDHCPMessageType]
	if !present || len(mt) != 1 || MessageType(mt[0]) != ACK {
		return Ack{}, false
	}

	yiaddr := p.YIAddr()
	if yiaddr.IsUnspecified() {
		return Ack{}, false
	}

	ack.ClientIP = append(net.IP(nil), yiaddr.To4()...)
	ack.ClientMAC = append(net.HardwareAddr(nil), p.CHAddr()...)

	if mask, present := options[OptionSubnetMask]; present && len(mask) == 4 {
		ack.Mask = net.IPMask(append([]byte(nil), mask...))
	}
	if gw, present := options[OptionRouter]; present && len(gw) >= 4 {
		ack.Gateway = append(net.IP(nil), gw[:4]...)
	}
	return ack, true
}

// maxAPAddressAttempts bounds the AP-address collision-avoidance loop
// (spec.md §4.2: "retry up to ten times").
const maxAPAddressAttempts = 10

// DeriveAPAddress picks a management address for the AP interface out
// of the subnet a DHCP ACK just revealed (spec.md §4.2): the highest
// host address in the subnet (broadcast address minus one). If that
// collides with the client's own address or the gateway, it is
// decremented and retried up to maxAPAddressAttempts times; if every
// attempt still collides, it falls back to clientIP-1, then
// clientIP+1.
//
// Returns the chosen address, or ok=false if ack carries no usable
// mask or no client address.
func DeriveAPAddress(ack Ack) (ip net.IP, ok bool) {
	if len(ack.Mask) != 4 || ack.ClientIP == nil {
		return nil, false
	}
	network := ack.ClientIP.Mask(ack.Mask)
	broadcast := broadcastAddress(network, ack.Mask)

	candidate := decrementIP(broadcast, 1)
	for attempt := 0; attempt < maxAPAddressAttempts; attempt++ {
		if !candidate.Equal(ack.ClientIP) && !candidate.Equal(ack.Gateway) && !candidate.Equal(network) {
			return candidate, true
		}
		candidate = decrementIP(candidate, 1)
	}

	fallback := decrementIP(ack.ClientIP, 1)
	if !fallback.Equal(network) && !fallback.Equal(ack.Gateway) {
		return fallback, true
	}
	return incrementIP(ack.ClientIP, 1), true
}

func broadcastAddress(network net.IP, mask net.IPMask) net.IP {
	b := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		b[i] = network[i] | ^mask[i]
	}
	return b
}

func decrementIP(ip net.IP, n uint32) net.IP {
	v := binary.BigEndian.Uint32(ip.To4()) - n
	out := make(net.IP, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}

func incrementIP(ip net.IP, n uint32) net.IP {
	v := binary.BigEndian.Uint32(ip.To4()) + n
	out := make(net.IP, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}
