package repeater

import (
	"net"
	"sync"
	"time"
)

// event is the tagged-variant input to the dispatch loop (spec.md §9:
// "one input channel carrying tagged events {RadioEvt, WorkerResult,
// Tick}"). The radio event dispatcher and the status ticker are the
// only producers; dispatchLoop is the sole consumer, so state mutated
// here never needs its own lock beyond what hotFlags already provides.
type event interface{}

type apClientJoinEvent struct{ mac net.HardwareAddr }
type apClientLeaveEvent struct{ mac net.HardwareAddr }
type staConnectedEvent struct {
	bssid   net.HardwareAddr
	channel int
}
type staDisconnectedEvent struct{ reason string }
type staGotIPEvent struct {
	ip      net.IP
	mask    net.IPMask
	gateway net.IP
}
type tickEvent struct{}

// primary tracks which downstream client's MAC is currently (or was
// last) cloned onto STA; it is session state read and written only
// from the dispatch loop and the worker goroutines it spawns.
type primaryTracker struct {
	mu  sync.Mutex
	mac net.HardwareAddr
}

func (p *primaryTracker) get() net.HardwareAddr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mac
}

func (p *primaryTracker) set(mac net.HardwareAddr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mac = append(net.HardwareAddr(nil), mac...)
}

// NotifyAPClientJoin/Leave and NotifySTAConnected/Disconnected are
// called by the radio event dispatcher (spec.md §6) whenever the
// driver emits AP_CLIENT_JOIN, AP_CLIENT_LEAVE, STA_CONNECTED, or
// STA_DISCONNECTED. They never block: the radio event handler "never
// blocks; it only flips flags, sets event bits, or spawns the worker"
// (spec.md §5).
func (r *Repeater) NotifyAPClientJoin(mac net.HardwareAddr) {
	r.enqueue(apClientJoinEvent{mac: mac})
}

func (r *Repeater) NotifyAPClientLeave(mac net.HardwareAddr) {
	r.enqueue(apClientLeaveEvent{mac: mac})
}

func (r *Repeater) NotifySTAConnected(bssid net.HardwareAddr, channel int) {
	select {
	case r.staConnectedCh <- struct{}{}:
	default:
	}
	r.enqueue(staConnectedEvent{bssid: bssid, channel: channel})
}

func (r *Repeater) NotifySTADisconnected(reason string) {
	select {
	case r.staDisconnectedCh <- struct{}{}:
	default:
	}
	r.enqueue(staDisconnectedEvent{reason: reason})
}

// NotifySTAGotIP is called by the radio event dispatcher whenever the
// STA interface's own network stack acquires an address (typically its
// DHCP client completing against the upstream server). It feeds
// spec.md §4.5's final paragraph: mirroring that address onto the AP
// interface so the HTTP configuration endpoint stays reachable once
// the factory AP subnet is gone.
func (r *Repeater) NotifySTAGotIP(ip net.IP, mask net.IPMask, gw net.IP) {
	r.enqueue(staGotIPEvent{ip: ip, mask: mask, gateway: gw})
}

func (r *Repeater) enqueue(e event) {
	select {
	case r.events <- e:
	case <-r.closeCh:
	}
}

func (r *Repeater) dispatchLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(statusTickInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-r.events:
			r.handleEvent(e)
		case <-ticker.C:
			r.handleEvent(tickEvent{})
		case <-r.closeCh:
			return
		}
	}
}

func (r *Repeater) handleEvent(e event) {
	switch ev := e.(type) {
	case apClientJoinEvent:
		r.handleAPClientJoin(ev.mac)
	case apClientLeaveEvent:
		r.handleAPClientLeave(ev.mac)
	case staConnectedEvent:
		r.handleSTAConnected(ev.bssid, ev.channel)
	case staDisconnectedEvent:
		r.handleSTADisconnected()
	case staGotIPEvent:
		r.handleSTAGotIP(ev.ip, ev.mask, ev.gateway)
	case tickEvent:
		r.handleTick()
	}
}

// handleAPClientJoin implements spec.md §4.5's two join transitions:
// a join while IDLE starts the first clone; a join while already
// BRIDGING needs no state change because MAC-NAT picks up the
// additional client automatically.
func (r *Repeater) handleAPClientJoin(mac net.HardwareAddr) {
	switch r.State() {
	case StateIdle:
		r.primary.set(mac)
		r.spawnWorker(func() { r.clone(mac) })
	case StateBridging:
		// MAC-NAT handles additional clients without a state change.
	default:
		// A join during MAC_CHANGING/MAC_RESTORING is left to the next
		// join/leave event to drive forward (spec.md §9 open question on
		// event drainage during re-clone).
	}
}

// handleAPClientLeave implements spec.md §4.5's three leave
// transitions: the primary leaving with others present triggers a
// re-clone (never passing through IDLE); the primary leaving with
// nobody left triggers a restore; a non-primary leaving is a no-op.
func (r *Repeater) handleAPClientLeave(mac net.HardwareAddr) {
	if mac.String() != r.primary.get().String() {
		return
	}

	remaining := r.driver.APClients()
	if len(remaining) == 0 {
		r.spawnWorker(r.restore)
		return
	}
	next := remaining[0]
	r.primary.set(next)
	r.spawnWorker(func() { r.clone(next) })
}

// handleSTAConnected implements spec.md §4.5: lock the upstream anchor
// on first association, and start forwarding only when mac_cloned is
// already true (forwarding is gated on state==BRIDGING per the §9
// open-question resolution recorded in DESIGN.md, not on mac_cloned
// alone).
func (r *Repeater) handleSTAConnected(bssid net.HardwareAddr, channel int) {
	r.flags.staConnected.Store(true)

	r.anchorMu.Lock()
	if !r.anchor.Locked {
		r.anchor = UpstreamAnchor{BSSID: append(net.HardwareAddr(nil), bssid...), Channel: channel, Locked: true}
	}
	r.anchorMu.Unlock()

	if r.flags.MACCloned() && r.State() == StateBridging {
		r.startForwarding()
	}
}

// handleSTADisconnected implements spec.md §4.5: forwarding stops
// immediately, and if reconnection is not currently suppressed by a
// worker sequence, a plain reconnect is attempted after a short delay.
func (r *Repeater) handleSTADisconnected() {
	r.flags.staConnected.Store(false)
	r.stopForwarding()

	if r.flags.reconnectSuppr.Load() {
		return
	}
	go func() {
		select {
		case <-time.After(autoReconnectDelay):
		case <-r.closeCh:
			return
		}
		if r.flags.reconnectSuppr.Load() || r.flags.staConnected.Load() {
			return
		}
		if err := r.driver.ConnectSTA(); err != nil {
			log.WithError(err).Warn("auto-reconnect failed")
		}
	}()
}

// handleSTAGotIP implements spec.md §4.5's final paragraph: once STA
// holds a real address while IDLE or BRIDGING, mirror it onto the AP
// interface (same address, same subnet) with the AP's own DHCP server
// stopped, so the HTTP configuration endpoint stays reachable at the
// STA address. Mirroring is skipped outside IDLE/BRIDGING (a MAC
// change is in flight) and for the link-local placeholder CLONE step 4
// assigns, or any zero address — both are artifacts of cloning, not a
// real upstream lease. Mirrors sniffDHCP's own apply path (frame.go).
func (r *Repeater) handleSTAGotIP(ip net.IP, mask net.IPMask, gw net.IP) {
	switch r.State() {
	case StateIdle, StateBridging:
	default:
		return
	}
	if ip == nil || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
		return
	}
	if err := r.driver.ConfigureInterface(AP, ip, mask, gw); err != nil {
		log.WithError(err).Warn("failed to mirror sta address onto ap interface")
		return
	}
	if err := r.driver.SetDHCPServer(AP, false); err != nil {
		log.WithError(err).Warn("failed to stop ap dhcp server after mirroring sta address")
	}
	r.announceAPAddress(ip)
}

func (r *Repeater) handleTick() {
	snap := r.StatusSnapshot()
	select {
	case r.status <- snap:
	default:
		select {
		case <-r.status:
		default:
		}
		select {
		case r.status <- snap:
		default:
		}
	}
}

// spawnWorker runs fn in its own goroutine tracked by r.wg, so Stop
// can wait for any in-flight Clone/Restore sequence.
func (r *Repeater) spawnWorker(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func (r *Repeater) startForwarding() {
	r.flags.forwardingActive.Store(true)
	if err := r.driver.SetPowerSave(PowerSaveOff); err != nil {
		log.WithError(err).Warn("failed to set power save off while forwarding")
	}
}

func (r *Repeater) stopForwarding() {
	if !r.flags.forwardingActive.Swap(false) {
		return
	}
	if err := r.driver.SetPowerSave(PowerSaveMinModem); err != nil {
		log.WithError(err).Warn("failed to set power save min-modem while idle")
	}
}

// StatusChannel returns the channel the external HTTP configuration
// server reads period status snapshots from (spec.md §6).
func (r *Repeater) StatusChannel() <-chan Status { return r.status }
