// ABOUTME: Explicit lifecycle state machine for a session.
// ABOUTME: Tracks the path from creation through authentication to closure.

package session

import "github.com/zapgate/zapgate/internal/waclient"

// Lifecycle models a session's explicit lifecycle:
// Uninitialized → QRPending → Connected ⇄ Disconnected/Timeout → Closed.
type Lifecycle int

const (
	LifecycleUninitialized Lifecycle = iota
	LifecycleQRPending
	LifecycleConnected
	LifecycleDisconnected
	LifecycleTimeout
	LifecycleClosed
)

// String returns the lifecycle name.
func (l Lifecycle) String() string {
	switch l {
	case LifecycleUninitialized:
		return "uninitialized"
	case LifecycleQRPending:
		return "qr_pending"
	case LifecycleConnected:
		return "connected"
	case LifecycleDisconnected:
		return "disconnected"
	case LifecycleTimeout:
		return "timeout"
	case LifecycleClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// lifecycleForState maps a raw client state token onto the lifecycle.
// Unknown tokens report ok=false and leave the lifecycle unchanged.
func lifecycleForState(st waclient.State) (Lifecycle, bool) {
	switch st {
	case waclient.StateConnected:
		return LifecycleConnected, true
	case waclient.StateDisconnected:
		return LifecycleDisconnected, true
	case waclient.StateTimeout:
		return LifecycleTimeout, true
	case waclient.StateQRCode:
		return LifecycleQRPending, true
	default:
		return 0, false
	}
}
