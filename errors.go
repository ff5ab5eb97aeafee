package repeater

import "errors"

// Sentinel errors, in the style of the teacher's session.go. Wrapped
// with fmt.Errorf("...: %w", err) at call sites that add context;
// there is no custom error type hierarchy.
var (
	// ErrWorkerBusy is logged when a Clone or Restore request cannot
	// acquire the worker mutex before its timeout because another
	// sequence is already running (spec.md §7): the request is dropped,
	// not retried, relying on the next join/leave event to converge.
	ErrWorkerBusy = errors.New("repeater: worker busy")

	// ErrSTAConnectTimeout is logged when a worker sequence times out
	// waiting for STA_CONNECTED.
	ErrSTAConnectTimeout = errors.New("repeater: sta connect timeout")

	// ErrSTADisconnectTimeout is logged when a worker sequence times
	// out waiting for STA_DISCONNECTED.
	ErrSTADisconnectTimeout = errors.New("repeater: sta disconnect timeout")

	// ErrInvalidMAC is logged when a clone is requested with a nil,
	// short, or multicast/broadcast hardware address where a unicast
	// client address is required.
	ErrInvalidMAC = errors.New("repeater: invalid hardware address")

	// ErrNotRunning is returned by Stop if the repeater was never
	// started, and by Run if called twice.
	ErrNotRunning = errors.New("repeater: not running")
)
