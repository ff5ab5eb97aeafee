package repeater

import (
	"net"

	"github.com/WikDra/esp-idf-wifi-repeater/arp"
)

// announceAPAddress sends a gratuitous ARP announcement for the AP
// interface's newly (re)configured management address, supplementing
// spec.md §4.5's address reconfiguration with the firmware-conventional
// behavior of announcing an interface's new address so nothing on the
// downstream ring holds a stale cache entry (see SPEC_FULL.md). Best
// effort: a transmit failure is logged, never surfaced.
func (r *Repeater) announceAPAddress(ip net.IP) {
	frame, err := arp.BuildAnnouncement(r.driver.APMAC(), ip)
	if err != nil {
		log.WithError(err).Debug("failed to build ap address announcement")
		return
	}
	if err := r.driver.TransmitPeer(AP, frame); err != nil {
		log.WithError(err).Debug("failed to transmit ap address announcement")
	}
}
