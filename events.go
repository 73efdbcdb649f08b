package xmpp

import (
	"github.com/quietwire/xmpp/stanza"
	"github.com/quietwire/xmpp/stream"
)

// ConnectionStatus describes the engine's position in the connection
// lifecycle, reported through StatusEvent.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	StreamNegotiating
	Securing
	Authenticating
	Binding
	Active
	Resuming
)

func (s ConnectionStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case StreamNegotiating:
		return "stream-negotiating"
	case Securing:
		return "securing"
	case Authenticating:
		return "authenticating"
	case Binding:
		return "binding"
	case Active:
		return "active"
	case Resuming:
		return "resuming"
	default:
		return "unknown"
	}
}

// Event is the type of value delivered on Session.Events().
type Event interface {
	isEvent()
}

// StatusEvent reports a transition in ConnectionStatus.
type StatusEvent struct {
	Status ConnectionStatus
}

// IqEvent reports an inbound IQ that no pending request claimed.
type IqEvent struct {
	Iq *stanza.IQ
}

// MessageEvent reports an inbound message stanza.
type MessageEvent struct {
	Message *stanza.Message
}

// PresenceEvent reports an inbound presence stanza.
type PresenceEvent struct {
	Presence *stanza.Presence
}

// StreamManagementFailedEvent reports that the server declined stream
// management enable or resume; the session continues without SM.
type StreamManagementFailedEvent struct {
	Err error
}

// ResumedEvent reports a successful XEP-0198 stream resumption,
// including the count of unacked outbound stanzas that were resent.
type ResumedEvent struct {
	Resent int
}

// ErrorEvent reports that the read loop lost the transport. Serve
// follows it with a ConnectionStatusEvent and leaves the session open,
// so a Rebind and resume can continue the same session.
type ErrorEvent struct {
	Err error
}

// StreamErrorEvent reports a classified RFC 6120 §4.9.3 stream error
// received from the peer.
type StreamErrorEvent struct {
	StreamErr *stream.Error
	Kind      ErrorKind // FatalStreamError or TransientStreamError
}

// Criticity is the severity an external auto-reconnector should treat
// a ConnectionStatusEvent with.
type Criticity string

const (
	// CriticityFatal means the engine has terminated and the caller
	// must not retry on the same or a new connection without
	// reconfiguring (see-other-host, conflict, kicked, ...).
	CriticityFatal Criticity = "fatal"
	// CriticityError means the connection was lost but reconnection
	// is reasonable.
	CriticityError Criticity = "error"
	// CriticityInfo means the condition did not by itself end the
	// connection.
	CriticityInfo Criticity = "info"
)

// ConnectionStatusEvent is the engine's externally-visible connection
// status notification. It fires whenever the logical connection state
// changes, including RFC 6120 §4.9 stream-error classification results
// and the XEP-0199 ping-timeout path that escalates a plain Timeout
// into a liveness failure.
type ConnectionStatusEvent struct {
	Connected bool
	Criticity Criticity
	Reason    string
	Details   string
}

// FullyConnectedEvent fires once, after the post-bind sequence
// (session establishment, disco probe, optional stream-management
// enable, optional carbons enable, roster fetch) completes.
type FullyConnectedEvent struct{}

func (StatusEvent) isEvent()                 {}
func (IqEvent) isEvent()                     {}
func (MessageEvent) isEvent()                {}
func (PresenceEvent) isEvent()               {}
func (StreamManagementFailedEvent) isEvent() {}
func (ResumedEvent) isEvent()                {}
func (ErrorEvent) isEvent()                  {}
func (StreamErrorEvent) isEvent()            {}
func (ConnectionStatusEvent) isEvent()       {}
func (FullyConnectedEvent) isEvent()         {}
