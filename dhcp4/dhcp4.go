// Package dhcp4 provides a zero-copy view over DHCPv4 messages and the
// ACK sniffer this core uses to learn the upstream subnet while its own
// STA-side DHCP client is disabled during bridging (spec.md §4.2).
//
// The frame type follows the teacher's byte-slice accessor idiom (see
// arp.ARP); the teacher's own DHCP4 type definition was not present in
// the retrieval pack, so the layout here is reconstructed from its
// call-sites (request.go, packet_test.go) and RFC 2131 §2's message
// format. The teacher's rogue/secondary DHCP *server* (leases,
// Discover/Offer/Request/Decline/Release handling, capture/hunt
// integration) has no home here: this core never runs a DHCP server of
// its own on the STA side, only a read-only sniffer of the real
// upstream server's traffic — see DESIGN.md.
package dhcp4

import (
	"encoding/binary"
	"net"
)

// OpCode is the DHCP message op field (BOOTREQUEST or BOOTREPLY).
type OpCode uint8

const (
	BootRequest OpCode = 1
	BootReply   OpCode = 2
)

// MessageType is the value of OptionDHCPMessageType (option 53).
type MessageType uint8

const (
	Discover MessageType = 1
	Offer    MessageType = 2
	Request  MessageType = 3
	Decline  MessageType = 4
	ACK      MessageType = 5
	Nak      MessageType = 6
	Release  MessageType = 7
	Inform   MessageType = 8
)

// Option codes this core inspects or sets.
const (
	OptionSubnetMask           = 1
	OptionRouter               = 3
	OptionHostName             = 12
	OptionRequestedIPAddress   = 50
	OptionIPAddressLeaseTime   = 51
	OptionDHCPMessageType      = 53
	OptionServerIdentifier     = 54
	OptionParameterRequestList = 55
	OptionClientIdentifier     = 61
)

// Fixed-field offsets (RFC 2131 §2). Options begin at offset 240,
// immediately after the four-byte magic cookie.
const (
	opOffset      = 0
	htypeOffset   = 1
	hlenOffset    = 2
	hopsOffset    = 3
	xidOffset     = 4
	secsOffset    = 8
	flagsOffset   = 10
	ciaddrOffset  = 12
	yiaddrOffset  = 16
	siaddrOffset  = 20
	giaddrOffset  = 24
	chaddrOffset  = 28
	chaddrLen     = 16
	snameOffset   = 44
	fileOffset    = 108
	cookieOffset  = 236
	optionsOffset = 240

	// MinLen is the smallest buffer that can hold the fixed DHCP header
	// plus the magic cookie, with no options.
	MinLen = optionsOffset

	broadcastFlag uint16 = 0x8000
)

var magicCookie = [4]byte{99, 130, 83, 99} // 63 82 53 63

// DHCP4 is a memory-mapped view over a DHCP message (the bytes
// following the UDP header).
type DHCP4 []byte

// IsValid reports whether b is at least MinLen bytes and carries the
// DHCP magic cookie.
func (b DHCP4) IsValid() bool {
	if len(b) < MinLen {
		return false
	}
	return b[cookieOffset] == magicCookie[0] && b[cookieOffset+1] == magicCookie[1] &&
		b[cookieOffset+2] == magicCookie[2] && b[cookieOffset+3] == magicCookie[3]
}

// OpCode returns the message op field.
func (b DHCP4) OpCode() OpCode { return OpCode(b[opOffset]) }

// XId returns the four-byte transaction ID.
func (b DHCP4) XId() []byte { return b[xidOffset : xidOffset+4] }

// Flags returns the raw flags field.
func (b DHCP4) Flags() uint16 { return binary.BigEndian.Uint16(b[flagsOffset : flagsOffset+2]) }

// Broadcast reports whether the broadcast bit (high bit of Flags) is set.
func (b DHCP4) Broadcast() bool { return b.Flags()&broadcastFlag != 0 }

// SetBroadcast sets the broadcast bit, leaving the rest of the flags
// field untouched. Used by the frame rewriter to force a client
// request to be answered by broadcast rather than unicast to chaddr
// (spec.md §4.3), since the radio's hardware address filter on STA
// would otherwise drop a unicast reply addressed to chaddr.
func (b DHCP4) SetBroadcast() {
	binary.BigEndian.PutUint16(b[flagsOffset:flagsOffset+2], b.Flags()|broadcastFlag)
}

// CIAddr returns the client IP address field (filled in by the client
// when it already has a usable address, e.g. during renewal).
func (b DHCP4) CIAddr() net.IP { return net.IP(b[ciaddrOffset : ciaddrOffset+4]) }

// YIAddr returns the "your (client) IP address" field, the address the
// server is assigning.
func (b DHCP4) YIAddr() net.IP { return net.IP(b[yiaddrOffset : yiaddrOffset+4]) }

// SIAddr returns the next-server IP address field.
func (b DHCP4) SIAddr() net.IP { return net.IP(b[siaddrOffset : siaddrOffset+4]) }

// GIAddr returns the relay agent IP address field.
func (b DHCP4) GIAddr() net.IP { return net.IP(b[giaddrOffset : giaddrOffset+4]) }

// CHAddr returns the client hardware address, trimmed to the 6 octets
// an Ethernet MAC actually uses (the field itself is 16 bytes wide to
// also accommodate other link layers).
func (b DHCP4) CHAddr() net.HardwareAddr {
	return net.HardwareAddr(b[chaddrOffset : chaddrOffset+6])
}

// Options is a parsed view of a DHCP options area: option code to raw
// value bytes.
type Options map[byte][]byte

// ParseOptions walks the options area (offset 240 onward) and returns
// a map of option code to value. Stops at the End option (255) or at
// the end of the buffer, whichever comes first. Pad bytes (0) between
// options are skipped. Malformed trailing data (a length byte with no
// room for its value) truncates the scan rather than panicking.
func (b DHCP4) ParseOptions() Options {
	opts := make(Options)
	i := optionsOffset
	for i < len(b) {
		code := b[i]
		if code == 0 { // pad
			i++
			continue
		}
		if code == 255 { // end
			break
		}
		if i+1 >= len(b) {
			break
		}
		length := int(b[i+1])
		start := i + 2
		end := start + length
		if end > len(b) {
			break
		}
		opts[code] = b[start:end]
		i = end
	}
	return opts
}
