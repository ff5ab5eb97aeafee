package repeater

// clone and restore are the two worker sequences (spec.md §4.5). Both
// run on their own goroutine (see spawnWorker in events.go) and must
// serialize with any other sequence via workerSem, a channel-backed
// mutex that supports the bounded acquisition timeout spec.md §7
// requires ("Worker mutex acquisition timeout... the new request is
// dropped with a warning").
//
// Grounded on the teacher's capture.go Capture/Release: lock, mutate a
// small amount of state, spawn the slow part, unlock — generalized
// here from a single capture-flag flip into the full disconnect/
// set-MAC/reconnect sequence the worker mutex itself now guards for
// its entire duration.

import (
	"net"
	"time"

	"github.com/WikDra/esp-idf-wifi-repeater/wire"
)

func (r *Repeater) acquireWorker() bool {
	select {
	case r.workerSem <- struct{}{}:
		return true
	case <-time.After(workerAcquireTimeout):
		return false
	}
}

func (r *Repeater) releaseWorker() {
	<-r.workerSem
}

// clone implements spec.md §4.5 CLONE(target_mac).
func (r *Repeater) clone(targetMAC net.HardwareAddr) {
	if len(targetMAC) != 6 || wire.IsMulticastMAC(targetMAC) {
		log.WithError(ErrInvalidMAC).WithField("target_mac", targetMAC).Error("clone rejected")
		return
	}
	if !r.acquireWorker() {
		log.WithError(ErrWorkerBusy).WithField("target_mac", targetMAC).Warn("clone dropped")
		return
	}
	defer r.releaseWorker()

	log := log.WithField("target_mac", targetMAC.String())
	r.flags.setState(StateMACChanging)

	// 1. Stop forwarding.
	r.stopForwarding()

	// 2. Assert reconnect suppression.
	r.flags.reconnectSuppr.Store(true)

	// 3. Disconnect STA; wait for the disconnected event.
	if err := r.driver.DisconnectSTA(); err != nil {
		log.WithError(err).Warn("clone: disconnect failed")
	}
	if !r.waitDisconnected(disconnectTimeout) {
		log.WithError(ErrSTADisconnectTimeout).Warn("clone: proceeding anyway")
	}

	// 4. Stop the STA DHCP client and assign the link-local placeholder.
	if err := r.driver.SetDHCPClient(STA, false); err != nil {
		log.WithError(err).Warn("clone: failed to stop sta dhcp client")
	}
	if err := r.driver.ConfigureInterface(STA, staPlaceholderAddress, staPlaceholderMask, nil); err != nil {
		log.WithError(err).Warn("clone: failed to set sta placeholder address")
	}

	// 5. Set the STA hardware address to target_mac.
	if err := r.driver.SetSTAMAC(targetMAC); err != nil {
		log.WithError(err).Warn("clone: set sta mac failed, falling back to original")
		r.failCloneToIdle()
		return
	}

	// 6. mac_cloned = true, client_mac = target_mac.
	r.flags.setClientMAC(targetMAC)
	r.flags.macCloned.Store(true)

	// 7. Pin the upstream anchor if one is locked; otherwise allow a
	// full scan.
	r.anchorMu.Lock()
	anchor := r.anchor
	r.anchorMu.Unlock()
	cfg := STAConfig{AllowScan: !anchor.Locked}
	if anchor.Locked {
		cfg.PinBSSID = anchor.BSSID
		cfg.PinChannel = anchor.Channel
	}
	if err := r.driver.ConfigureSTA(cfg); err != nil {
		log.WithError(err).Warn("clone: configure sta failed")
	}

	// 8. Clear suppression, reconnect, wait for STA CONNECTED.
	r.flags.reconnectSuppr.Store(false)
	if err := r.driver.ConnectSTA(); err != nil {
		log.WithError(err).Warn("clone: connect failed")
	}
	if !r.waitConnected(connectTimeout) {
		log.WithError(ErrSTAConnectTimeout).Warn("clone: falling back to original mac")
		r.unpinAnchor()
		r.failCloneToIdle()
		return
	}

	// 9. Success: enter BRIDGING and start forwarding. The worker makes
	// this transition itself, rather than leaving it to the
	// STA_CONNECTED handler, because when that event fires the state is
	// still MAC_CHANGING; see DESIGN.md's resolution of spec.md §9's
	// open question about what gates forwarding_start.
	r.flags.setState(StateBridging)
	r.startForwarding()
}

// failCloneToIdle is the CLONE failure path shared by a failed
// SetSTAMAC and a connect timeout (spec.md §4.5 step 5 and step 9's
// timeout branch): restore the original MAC, restart the STA DHCP
// client stopped in step 4, clear suppression, issue a plain
// reconnect, and return to IDLE. It does not touch the
// upstream anchor: spec.md §4.5 step 5's failure path says nothing
// about unpinning it, so a caller that needs the step 9 behavior
// ("unpin the anchor") calls unpinAnchor itself before this.
func (r *Repeater) failCloneToIdle() {
	if err := r.driver.SetSTAMAC(r.originalSTAMAC); err != nil {
		log.WithError(err).Error("failed to restore original sta mac after failed clone")
	}
	r.flags.macCloned.Store(false)
	r.flags.setClientMAC(nil)

	if err := r.driver.SetDHCPClient(STA, true); err != nil {
		log.WithError(err).Warn("failed to restart sta dhcp client after failed clone")
	}

	r.flags.reconnectSuppr.Store(false)
	if err := r.driver.ConnectSTA(); err != nil {
		log.WithError(err).Warn("reconnect after failed clone failed")
	}
	r.flags.setState(StateIdle)
}

// unpinAnchor clears the locked upstream anchor, forcing the next
// clone to allow a full scan instead of pinning the previous BSSID/
// channel.
func (r *Repeater) unpinAnchor() {
	r.anchorMu.Lock()
	r.anchor = UpstreamAnchor{}
	r.anchorMu.Unlock()
}

// restore implements spec.md §4.5 RESTORE.
func (r *Repeater) restore() {
	if !r.acquireWorker() {
		log.WithError(ErrWorkerBusy).Warn("restore dropped")
		return
	}
	defer r.releaseWorker()

	r.flags.setState(StateMACRestoring)

	// 1. Stop forwarding.
	r.stopForwarding()

	// 2. Assert reconnect suppression.
	r.flags.reconnectSuppr.Store(true)

	// 3. Disconnect STA; wait for the disconnected event.
	if err := r.driver.DisconnectSTA(); err != nil {
		log.WithError(err).Warn("restore: disconnect failed")
	}
	if !r.waitDisconnected(disconnectTimeout) {
		log.WithError(ErrSTADisconnectTimeout).Warn("restore: proceeding anyway")
	}

	// 4. Restore original_sta_mac; clear mac_cloned.
	if err := r.driver.SetSTAMAC(r.originalSTAMAC); err != nil {
		log.WithError(err).Error("restore: failed to set original sta mac")
	}
	r.flags.macCloned.Store(false)
	r.flags.setClientMAC(nil)

	// 5. Restart the STA DHCP client.
	if err := r.driver.SetDHCPClient(STA, true); err != nil {
		log.WithError(err).Warn("restore: failed to restart sta dhcp client")
	}

	// 6. Clear the MAC-NAT table and the sniff latch; restore the
	// factory AP management address with its DHCP server on.
	r.macnat.Clear()
	r.sniffMu.Lock()
	r.apAddressDerived = false
	r.sniffMu.Unlock()
	if err := r.driver.ConfigureInterface(AP, DefaultAPAddress, DefaultAPMask, nil); err != nil {
		log.WithError(err).Warn("restore: failed to reset ap address")
	}
	if err := r.driver.SetDHCPServer(AP, true); err != nil {
		log.WithError(err).Warn("restore: failed to restart ap dhcp server")
	}
	r.announceAPAddress(DefaultAPAddress)

	// 7. Unpin the anchor, clear suppression, reconnect.
	r.unpinAnchor()
	r.flags.reconnectSuppr.Store(false)
	if err := r.driver.ConnectSTA(); err != nil {
		log.WithError(err).Warn("restore: reconnect failed")
	}
	// A connect timeout here is left to the periodic auto-reconnect
	// (spec.md §7: "stay in IDLE, let the periodic auto-reconnect retry
	// indefinitely"), so the wait result itself is not acted upon.
	r.waitConnected(connectTimeout)

	// 8. End in IDLE.
	r.flags.setState(StateIdle)
}

func (r *Repeater) waitDisconnected(timeout time.Duration) bool {
	select {
	case <-r.staDisconnectedCh:
		return true
	case <-time.After(timeout):
		return false
	case <-r.closeCh:
		return false
	}
}

func (r *Repeater) waitConnected(timeout time.Duration) bool {
	select {
	case <-r.staConnectedCh:
		return true
	case <-time.After(timeout):
		return false
	case <-r.closeCh:
		return false
	}
}
