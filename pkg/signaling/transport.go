package signaling

import (
	"context"

	"github.com/pion/webrtc/v3"
)

type State int32

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Handler receives the transport events.
// The transport calls it from its own goroutines.
type Handler interface {
	OnStateChanged(state State)
	// OnError reports transport failures, ErrReconnectRequired
	// asks the owner to recreate the transport.
	OnError(err error)
	OnMessage(msg Message)
}

// Transport is a signaling channel. All calls are synchronous.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg Message) error
	// IceServers returns the relay servers known to the channel,
	// an empty list means that nothing has been fetched yet.
	IceServers(ctx context.Context) ([]webrtc.ICEServer, error)
	State() State
	Close() error
}

// Dialer makes a new transport bound to the handler.
type Dialer func(h Handler) (Transport, error)
