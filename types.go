package repeater

import (
	"net"
	"sync/atomic"
	"time"
)

// RepeaterState is the bridging state machine's state (spec.md §4.5).
// It is a sum type in spirit: BRIDGING is the only state for which
// ClientMAC() is meaningful, but Go has no tagged-union syntax, so the
// invalid-state surface is instead kept small by funnelling every
// transition through the worker and the event dispatcher rather than
// letting callers poke at the fields directly (spec.md §9).
type RepeaterState int32

const (
	// StateIdle: STA uses OriginalSTAMAC, its DHCP client runs normally,
	// forwarding is off.
	StateIdle RepeaterState = iota
	// StateMACChanging: a Clone worker sequence is in progress.
	// Forwarding is off throughout.
	StateMACChanging
	// StateBridging: STA uses a cloned client MAC, its DHCP client is
	// stopped, forwarding is on.
	StateBridging
	// StateMACRestoring: the Restore worker sequence is reverting STA to
	// OriginalSTAMAC. Forwarding is off throughout.
	StateMACRestoring
)

func (s RepeaterState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateMACChanging:
		return "MAC_CHANGING"
	case StateBridging:
		return "BRIDGING"
	case StateMACRestoring:
		return "MAC_RESTORING"
	default:
		return "UNKNOWN"
	}
}

// UpstreamAnchor records the BSSID and channel of the first successful
// upstream association (spec.md §3). While Locked is true,
// reconnections after MAC changes are pinned to the same AP/channel
// instead of rescanning. A restore, or a clone whose reconnect times
// out, unpins it; the next STA_CONNECTED locks it again.
type UpstreamAnchor struct {
	BSSID   net.HardwareAddr
	Channel int
	Locked  bool
}

// hotFlags holds the handful of process-wide booleans and the current
// cloned client MAC that the ingress hot path reads without locks
// (spec.md §5: "Writes are single-word and are acceptable without
// locks... only a consistent snapshot of each flag is needed, not
// cross-flag atomicity"). Every write to any field here happens either
// from the worker (while holding workerSem) or from the event dispatcher
// goroutine; atomic.Int32/atomic.Bool/atomic.Pointer give the hot path a lock-free
// read of a single, consistent snapshot per field.
type hotFlags struct {
	state            atomic.Int32
	macCloned        atomic.Bool
	forwardingActive atomic.Bool
	staConnected     atomic.Bool
	reconnectSuppr   atomic.Bool
	clientMAC        atomic.Pointer[net.HardwareAddr]
}

func (f *hotFlags) State() RepeaterState { return RepeaterState(f.state.Load()) }
func (f *hotFlags) setState(s RepeaterState) { f.state.Store(int32(s)) }

func (f *hotFlags) MACCloned() bool { return f.macCloned.Load() }

func (f *hotFlags) ForwardingActive() bool { return f.forwardingActive.Load() }

func (f *hotFlags) STAConnected() bool { return f.staConnected.Load() }

func (f *hotFlags) ClientMAC() net.HardwareAddr {
	p := f.clientMAC.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (f *hotFlags) setClientMAC(mac net.HardwareAddr) {
	cp := append(net.HardwareAddr(nil), mac...)
	f.clientMAC.Store(&cp)
}

// Counters reports state derived live from the radio driver's
// authoritative client list rather than maintained incrementally
// (spec.md §3: "duplicate leave events must not bias the count").
type Counters struct {
	ClientCount int
}

// Status is the read-only view of the core that the external HTTP
// configuration server consumes (spec.md §6).
type Status struct {
	State        RepeaterState
	MACCloned    bool
	Forwarding   bool
	STAConnected bool
	STAMAC       net.HardwareAddr
	ClientCount  int
	Time         time.Time
}
