package xmpp

import (
	"errors"
	"fmt"

	"github.com/quietwire/xmpp/stanza"
)

// ErrorKind classifies the failures an engine operation can produce.
type ErrorKind int

const (
	// InvalidConfig means the engine or client was constructed with
	// contradictory or missing configuration.
	InvalidConfig ErrorKind = iota
	// ConnectFailed means the transport could not be established.
	ConnectFailed
	// TlsFailed means STARTTLS negotiation or certificate validation failed.
	TlsFailed
	// AuthenticationFailed means SASL negotiation did not complete
	// successfully; Unwrap yields one of NoSupportedSaslMechanism,
	// BadCredentials or ServerSignatureMismatch where applicable.
	AuthenticationFailed
	// BindFailed means resource binding was rejected by the server.
	BindFailed
	// ProtocolViolation means the peer sent something that does not
	// conform to the XMPP stream grammar or state machine.
	ProtocolViolation
	// IqError means a sent IQ received an error response.
	IqError
	// Timeout means a request did not receive a response within its
	// deadline.
	Timeout
	// Cancelled means the caller's context was cancelled before the
	// operation completed.
	Cancelled
	// ConnectionLost means the transport failed or a ping safety net
	// deadline elapsed without activity from the peer.
	ConnectionLost
	// FatalStreamError means the peer (or we) sent a stream-level error
	// that ends the session and must not be retried on the same stream.
	FatalStreamError
	// TransientStreamError means the peer sent a stream-level error that
	// a caller may retry (typically by reconnecting).
	TransientStreamError
	// NotConnected means the session is closed (normally or due to a
	// fatal condition) and will not accept further sends; XEP-0198
	// resumption is forbidden once this is reached.
	NotConnected
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidConfig:
		return "invalid-config"
	case ConnectFailed:
		return "connect-failed"
	case TlsFailed:
		return "tls-failed"
	case AuthenticationFailed:
		return "authentication-failed"
	case BindFailed:
		return "bind-failed"
	case ProtocolViolation:
		return "protocol-violation"
	case IqError:
		return "iq-error"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	case ConnectionLost:
		return "connection-lost"
	case FatalStreamError:
		return "fatal-stream-error"
	case TransientStreamError:
		return "transient-stream-error"
	case NotConnected:
		return "not-connected"
	default:
		return "unknown"
	}
}

// Error is the engine's typed error, carrying a Kind a caller can switch
// on alongside the usual wrapped cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xmpp: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("xmpp: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err under the given Kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Sentinels unwrapped from an *Error with Kind == AuthenticationFailed.
var (
	ErrNoSupportedSaslMechanism = errors.New("xmpp: no SASL mechanism offered by the server is supported")
	ErrBadCredentials           = errors.New("xmpp: server rejected the supplied credentials")
	ErrServerSignatureMismatch  = errors.New("xmpp: server SCRAM signature did not verify; possible MITM")
)

// ErrNotConnected is wrapped by a NotConnected-kind *Error returned
// from Send/SendIQ once the session has closed.
var ErrNotConnected = errors.New("xmpp: not connected")

// Common stanza errors as convenience constructors.

func ErrBadRequest(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeModify, stanza.ErrorBadRequest, text)
}

func ErrConflict(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorConflict, text)
}

func ErrFeatureNotImplemented(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorFeatureNotImplemented, text)
}

func ErrForbidden(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeAuth, stanza.ErrorForbidden, text)
}

func ErrItemNotFound(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorItemNotFound, text)
}

func ErrNotAllowed(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorNotAllowed, text)
}

func ErrNotAuthorized(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeAuth, stanza.ErrorNotAuthorized, text)
}

func ErrServiceUnavailable(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorServiceUnavailable, text)
}

func ErrInternalServerError(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorInternalServerError, text)
}

func ErrRecipientUnavailable(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeWait, stanza.ErrorRecipientUnavailable, text)
}
