package repeater

import (
	"net"

	"github.com/WikDra/esp-idf-wifi-repeater/dhcp4"
	"github.com/WikDra/esp-idf-wifi-repeater/wire"
)

func ethDst(frame []byte) net.HardwareAddr { return wire.Ethernet(frame).Dst() }
func ethSrc(frame []byte) net.HardwareAddr { return wire.Ethernet(frame).Src() }

func isMulticastMAC(mac net.HardwareAddr) bool { return wire.IsMulticastMAC(mac) }

// dhcpPrecheckLen is the minimum frame length the inline DHCP
// pre-check requires (spec.md §4.4 step 2 / §4.2): Ethernet(14) +
// IPv4(20) + UDP(8) + DHCP fixed fields through the magic cookie
// (240) = 282, but the spec's own boundary test (§8) fixes the floor
// at 286, matching the reference implementation's slightly more
// conservative margin.
const dhcpPrecheckLen = 286

// isDHCPServerToClient is the inline pre-check from spec.md §4.4 step
// 2: short-circuits before any function call for the overwhelming
// majority of frames that aren't a server-to-client DHCP message.
func isDHCPServerToClient(frame []byte) bool {
	if len(frame) < dhcpPrecheckLen {
		return false
	}
	eth := wire.Ethernet(frame)
	if eth.EtherType() != wire.EtherTypeIPv4 {
		return false
	}
	ip4 := wire.IPv4(eth.Payload())
	if !ip4.IsValid() || ip4.Protocol() != 17 {
		return false
	}
	udp := wire.UDP(ip4.Payload())
	return udp.IsValid() && udp.SrcPort() == dhcp4.ServerPort && udp.DstPort() == dhcp4.ClientPort
}

// sniffDHCP implements spec.md §4.2 steps 5-6: feed the MAC-NAT table,
// and on the first ACK of the current bridging session derive and
// apply a management address for the AP interface.
func (r *Repeater) sniffDHCP(frame []byte) {
	eth := wire.Ethernet(frame)
	ip4 := wire.IPv4(eth.Payload())
	if !ip4.IsValid() {
		return
	}
	udp := wire.UDP(ip4.Payload())
	if !udp.IsValid() {
		return
	}

	ack, ok := dhcp4.SniffAck(udp.Payload())
	if !ok {
		return
	}
	r.macnat.Learn(ack.ClientIP, ack.ClientMAC)

	r.sniffMu.Lock()
	already := r.apAddressDerived
	if !already {
		r.apAddressDerived = true
	}
	r.sniffMu.Unlock()
	if already {
		return
	}

	apIP, ok := dhcp4.DeriveAPAddress(ack)
	if !ok {
		return
	}
	if err := r.driver.ConfigureInterface(AP, apIP, ack.Mask, ack.Gateway); err != nil {
		log.WithError(err).Warn("failed to configure ap interface from sniffed dhcp ack")
		return
	}
	if err := r.driver.SetDHCPServer(AP, false); err != nil {
		log.WithError(err).Warn("failed to stop ap dhcp server after sniffed dhcp ack")
	}
	r.announceAPAddress(apIP)
}
