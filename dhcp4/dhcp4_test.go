package dhcp4

import (
	"encoding/binary"
	"net"
	"testing"
)

// buildAck constructs a minimal, well-formed BOOTREPLY ACK message for
// tests: fixed header + magic cookie + message-type/subnet-mask/router
// options + end marker.
func buildAck(t *testing.T, yiaddr net.IP, chaddr net.HardwareAddr, mask net.IPMask, gw net.IP) DHCP4 {
	t.Helper()
	buf := make([]byte, MinLen+32)
	buf[opOffset] = byte(BootReply)
	buf[htypeOffset] = 1
	buf[hlenOffset] = 6
	binary.BigEndian.PutUint32(buf[xidOffset:], 0x11223344)
	copy(buf[yiaddrOffset:], yiaddr.To4())
	copy(buf[chaddrOffset:], chaddr)
	copy(buf[cookieOffset:], magicCookie[:])

	i := optionsOffset
	buf[i] = OptionDHCPMessageType
	buf[i+1] = 1
	buf[i+2] = byte(ACK)
	i += 3

	buf[i] = OptionSubnetMask
	buf[i+1] = 4
	copy(buf[i+2:], mask)
	i += 6

	buf[i] = OptionRouter
	buf[i+1] = 4
	copy(buf[i+2:], gw.To4())
	i += 6

	buf[i] = 255 // end
	return DHCP4(buf)
}

func TestSniffAckExtractsFields(t *testing.T) {
	chaddr, _ := net.ParseMAC("cc:cc:cc:cc:cc:03")
	yiaddr := net.IPv4(192, 168, 8, 110)
	mask := net.CIDRMask(24, 32)
	gw := net.IPv4(192, 168, 8, 1)

	frame := buildAck(t, yiaddr, chaddr, mask, gw)

	ack, ok := SniffAck(frame)
	if !ok {
		t.Fatalf("SniffAck() ok = false, want true")
	}
	if !ack.ClientIP.Equal(yiaddr) {
		t.Errorf("ClientIP = %s, want %s", ack.ClientIP, yiaddr)
	}
	if ack.ClientMAC.String() != chaddr.String() {
		t.Errorf("ClientMAC = %s, want %s", ack.ClientMAC, chaddr)
	}
	if !net.IP(ack.Mask).Equal(net.IP(mask)) {
		t.Errorf("Mask = %v, want %v", ack.Mask, mask)
	}
	if !ack.Gateway.Equal(gw) {
		t.Errorf("Gateway = %s, want %s", ack.Gateway, gw)
	}
}

func TestSniffAckRejectsNonAck(t *testing.T) {
	chaddr, _ := net.ParseMAC("cc:cc:cc:cc:cc:03")
	frame := buildAck(t, net.IPv4(10, 0, 0, 5), chaddr, net.CIDRMask(24, 32), net.IPv4(10, 0, 0, 1))
	// Overwrite the message type to Offer: not an ACK.
	frame[optionsOffset+2] = byte(Offer)

	if _, ok := SniffAck(frame); ok {
		t.Errorf("SniffAck() ok = true for an Offer message, want false")
	}
}

func TestSniffAckRejectsBootRequest(t *testing.T) {
	chaddr, _ := net.ParseMAC("cc:cc:cc:cc:cc:03")
	frame := buildAck(t, net.IPv4(10, 0, 0, 5), chaddr, net.CIDRMask(24, 32), net.IPv4(10, 0, 0, 1))
	frame[opOffset] = byte(BootRequest)

	if _, ok := SniffAck(frame); ok {
		t.Errorf("SniffAck() ok = true for a BOOTREQUEST, want false")
	}
}

func TestSniffAckRejectsBadMagicCookie(t *testing.T) {
	chaddr, _ := net.ParseMAC("cc:cc:cc:cc:cc:03")
	frame := buildAck(t, net.IPv4(10, 0, 0, 5), chaddr, net.CIDRMask(24, 32), net.IPv4(10, 0, 0, 1))
	frame[cookieOffset] = 0

	if _, ok := SniffAck(frame); ok {
		t.Errorf("SniffAck() ok = true with a corrupted magic cookie, want false")
	}
}

func TestSniffAckRejectsTruncatedFrame(t *testing.T) {
	if _, ok := SniffAck(make([]byte, MinLen-1)); ok {
		t.Errorf("SniffAck() ok = true for a truncated frame, want false")
	}
}

func TestDeriveAPAddressHighestHost(t *testing.T) {
	ack := Ack{
		ClientIP: net.IPv4(192, 168, 8, 110),
		Mask:     net.CIDRMask(24, 32),
		Gateway:  net.IPv4(192, 168, 8, 1),
	}
	ip, ok := DeriveAPAddress(ack)
	if !ok {
		t.Fatalf("DeriveAPAddress() ok = false")
	}
	want := net.IPv4(192, 168, 8, 254)
	if !ip.Equal(want) {
		t.Errorf("DeriveAPAddress() = %s, want %s", ip, want)
	}
}

func TestDeriveAPAddressAvoidsClientAndGatewayCollision(t *testing.T) {
	// /30 subnet: 192.168.8.0/30 -> network .0, hosts .1/.2, broadcast .3.
	// Both host addresses are already taken (client .1, gateway .2), so
	// the highest-host-minus-broadcast candidate (.2) collides with the
	// gateway, the next (.1) with the client, and the one after that
	// (.0) with the network itself: every address the /30 can offer is
	// taken, forcing the retry loop to walk past the subnet's own
	// boundary before it finds something free.
	ack := Ack{
		ClientIP: net.IPv4(192, 168, 8, 1),
		Mask:     net.CIDRMask(30, 32),
		Gateway:  net.IPv4(192, 168, 8, 2),
	}
	ip, ok := DeriveAPAddress(ack)
	if !ok {
		t.Fatalf("DeriveAPAddress() ok = false")
	}
	if ip.Equal(ack.ClientIP) || ip.Equal(ack.Gateway) {
		t.Errorf("DeriveAPAddress() = %s, collides with client or gateway", ip)
	}
}

func TestDeriveAPAddressFallsBackWhenNoMask(t *testing.T) {
	if _, ok := DeriveAPAddress(Ack{ClientIP: net.IPv4(10, 0, 0, 5)}); ok {
		t.Errorf("DeriveAPAddress() ok = true with no subnet mask, want false")
	}
}

func TestBroadcastFlag(t *testing.T) {
	chaddr, _ := net.ParseMAC("cc:cc:cc:cc:cc:03")
	frame := buildAck(t, net.IPv4(10, 0, 0, 5), chaddr, net.CIDRMask(24, 32), net.IPv4(10, 0, 0, 1))

	if frame.Broadcast() {
		t.Fatalf("Broadcast() = true before SetBroadcast()")
	}
	frame.SetBroadcast()
	if !frame.Broadcast() {
		t.Errorf("Broadcast() = false after SetBroadcast()")
	}
}

func TestParseOptionsStopsAtEnd(t *testing.T) {
	chaddr, _ := net.ParseMAC("cc:cc:cc:cc:cc:03")
	frame := buildAck(t, net.IPv4(10, 0, 0, 5), chaddr, net.CIDRMask(24, 32), net.IPv4(10, 0, 0, 1))
	opts := frame.ParseOptions()
	if _, ok := opts[OptionDHCPMessageType]; !ok {
		t.Errorf("ParseOptions() missing OptionDHCPMessageType")
	}
	if _, ok := opts[OptionRouter]; !ok {
		t.Errorf("ParseOptions() missing OptionRouter")
	}
}
