// Package repeater implements the core of a single-radio WiFi
// repeater: the ingress callbacks, MAC-cloning state machine, and
// MAC-NAT-backed frame rewriting that let several downstream clients
// share one cloned upstream MAC address, without NAT, while every
// client still obtains its address from the real upstream DHCP server.
//
// Grounded on the teacher's session.go (a single process-wide state
// struct owning background goroutines and a close channel),
// capture.go (lock, mutate, spawn a background sequence, unlock), and
// notification.go (a ticker-driven purge loop and an outbound
// notification channel) — generalized from host-tracking to the
// bridging state machine this core implements.
package repeater

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/WikDra/esp-idf-wifi-repeater/macnat"
	"github.com/WikDra/esp-idf-wifi-repeater/rewrite"
)

// Debug gates verbose per-frame logging on the hot ingress path,
// mirroring the teacher's arp.Debug/dhcp4.Debug package-level switch:
// compiled in, branch-predicted away in production.
var Debug bool

var log = logrus.WithField("module", "repeater")

// Default addresses (spec.md §4.5, §9).
var (
	// DefaultAPAddress is the factory AP management address restored at
	// the end of RESTORE: 192.168.4.1/24 with its DHCP server running.
	DefaultAPAddress = net.IPv4(192, 168, 4, 1)
	DefaultAPMask    = net.CIDRMask(24, 32)

	// staPlaceholderAddress satisfies the host network layer's refusal
	// to run an interface with no address while STA's own DHCP client
	// is stopped during a MAC change (spec.md §4.5 step 4).
	staPlaceholderAddress = net.IPv4(169, 254, 1, 1)
	staPlaceholderMask    = net.CIDRMask(16, 32)
)

// Timeouts from spec.md §4.5/§5.
const (
	disconnectTimeout    = 5 * time.Second
	connectTimeout       = 15 * time.Second
	workerAcquireTimeout = 5 * time.Second
	autoReconnectDelay   = time.Second
	statusTickInterval   = time.Second
)

// Repeater is the single owned state struct the whole core hangs off
// of (spec.md §9: "a clean implementation models the core as a single
// actor"). The zero value is not usable; construct with New.
type Repeater struct {
	driver RadioDriver
	config ConfigStore

	originalSTAMAC net.HardwareAddr
	macnat         *macnat.Table

	flags   hotFlags
	primary primaryTracker

	// workerSem is a 1-buffered channel used as a mutex with a timeout,
	// since sync.Mutex cannot be acquired with a deadline (spec.md §7:
	// "Worker mutex acquisition timeout").
	workerSem chan struct{}

	// anchorMu guards anchor; it is touched only by the worker and the
	// event dispatcher, both infrequent, so a plain mutex (not atomics)
	// is appropriate here, unlike hotFlags.
	anchorMu sync.Mutex
	anchor   UpstreamAnchor

	// apAddressDerived latches spec.md §4.2 step 6: true once an AP
	// address has been derived from a sniffed DHCP ACK in the current
	// bridging session, so later ACKs skip recomputation. Cleared by
	// Restore (spec.md §4.5 RESTORE step 6). Touched only while
	// workerSem is held or from within the single-threaded DHCP sniff
	// path, so a plain mutex-guarded bool is enough.
	sniffMu          sync.Mutex
	apAddressDerived bool

	// staConnectedCh/staDisconnectedCh are notified by
	// NotifySTAConnected/NotifySTADisconnected; the worker waits on
	// them with a timeout while a sequence is in flight.
	staConnectedCh    chan struct{}
	staDisconnectedCh chan struct{}

	events  chan event
	closeCh chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	status chan Status
}

// New constructs a Repeater in the IDLE state. originalSTAMAC is the
// factory STA hardware address restored whenever bridging ends.
func New(driver RadioDriver, config ConfigStore, originalSTAMAC net.HardwareAddr) *Repeater {
	r := &Repeater{
		driver:            driver,
		config:            config,
		originalSTAMAC:    append(net.HardwareAddr(nil), originalSTAMAC...),
		macnat:            macnat.New(),
		workerSem:         make(chan struct{}, 1),
		staConnectedCh:    make(chan struct{}, 1),
		staDisconnectedCh: make(chan struct{}, 1),
		events:            make(chan event, 32),
		closeCh:           make(chan struct{}),
		status:            make(chan Status, 1),
	}
	r.flags.setState(StateIdle)
	return r
}

// Run starts the event dispatcher and status ticker goroutines. It
// returns ErrNotRunning if called more than once.
func (r *Repeater) Run() error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrNotRunning
	}
	r.wg.Add(1)
	go r.dispatchLoop()
	return nil
}

// Stop ends the dispatcher and ticker goroutines, and waits for any
// in-flight Clone/Restore worker sequence. It returns ErrNotRunning if
// the repeater was never started or Stop was already called.
func (r *Repeater) Stop() error {
	if !r.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	close(r.closeCh)
	r.wg.Wait()
	return nil
}

// State, MACCloned, ForwardingActive, STAConnected, ClientMAC expose
// the hot flags read lock-free by the ingress callbacks (spec.md §5);
// they are equally safe to call from outside the hot path.
func (r *Repeater) State() RepeaterState        { return r.flags.State() }
func (r *Repeater) MACCloned() bool             { return r.flags.MACCloned() }
func (r *Repeater) ForwardingActive() bool      { return r.flags.ForwardingActive() }
func (r *Repeater) STAConnected() bool          { return r.flags.STAConnected() }
func (r *Repeater) ClientMAC() net.HardwareAddr { return r.flags.ClientMAC() }

// Counters derives the live client count from the radio driver's
// authoritative list (spec.md §3).
func (r *Repeater) Counters() Counters {
	return Counters{ClientCount: len(r.driver.APClients())}
}

// StatusSnapshot returns a read-only view of the core for the external
// HTTP configuration server (spec.md §6).
func (r *Repeater) StatusSnapshot() Status {
	return Status{
		State:        r.State(),
		MACCloned:    r.MACCloned(),
		Forwarding:   r.ForwardingActive(),
		STAConnected: r.STAConnected(),
		STAMAC:       r.driver.STAMAC(),
		ClientCount:  r.Counters().ClientCount,
		Time:         time.Now(),
	}
}

// OnSTARx is the ingress callback for frames received on the upstream
// AP's radio (the STA interface) — spec.md §4.4. It takes ownership of
// frame and ends with exactly one of driver.DeliverToStack or
// driver.FreeBuffer.
func (r *Repeater) OnSTARx(frame []byte) {
	if len(frame) < 14 {
		r.driver.FreeBuffer(frame)
		return
	}

	// Inline DHCP pre-check (spec.md §4.4 step 2): short-circuits before
	// any function call for the ~99.9% of frames that aren't DHCP.
	if isDHCPServerToClient(frame) {
		r.sniffDHCP(frame)
	}

	clientCount := r.Counters().ClientCount
	dst := ethDst(frame)
	if clientCount > 1 && !isMulticastMAC(dst) {
		rewrite.Downstream(frame, r.macnat, r.ClientMAC())
	}

	if err := r.driver.TransmitPeer(AP, frame); err != nil && Debug {
		log.WithError(err).Debug("transmit to ap failed")
	}

	switch {
	case isMulticastMAC(dst):
		r.deliver(STA, frame)
	case dst.String() == r.originalSTAMAC.String():
		r.deliver(STA, frame)
	case r.MACCloned() && dst.String() == r.ClientMAC().String():
		r.deliver(STA, frame)
	default:
		r.driver.FreeBuffer(frame)
	}
}

// OnAPRx is the ingress callback for frames received from downstream
// clients on the AP interface — spec.md §4.4.
func (r *Repeater) OnAPRx(frame []byte) {
	if len(frame) < 14 {
		r.driver.FreeBuffer(frame)
		return
	}

	src := ethSrc(frame)
	clientCount := r.Counters().ClientCount
	primary := r.ClientMAC()
	if clientCount > 1 && !isMulticastMAC(src) && src.String() != primary.String() {
		rewrite.Upstream(frame, r.macnat, primary)
	}

	dst := ethDst(frame)
	staConnected := r.STAConnected()

	switch {
	case isMulticastMAC(dst):
		if staConnected {
			if err := r.driver.TransmitPeer(STA, frame); err != nil && Debug {
				log.WithError(err).Debug("transmit to sta failed")
			}
		}
		r.deliver(AP, frame)
	case dst.String() == r.driver.APMAC().String():
		r.deliver(AP, frame)
	default:
		if staConnected {
			if err := r.driver.TransmitPeer(STA, frame); err != nil && Debug {
				log.WithError(err).Debug("transmit to sta failed")
			}
		}
		r.driver.FreeBuffer(frame)
	}
}

func (r *Repeater) deliver(iface Interface, frame []byte) {
	if err := r.driver.DeliverToStack(iface, frame); err != nil && Debug {
		log.WithError(err).WithField("iface", iface).Debug("deliver to stack failed")
	}
}

