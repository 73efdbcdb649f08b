package xmpp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"

	"github.com/quietwire/xmpp/stream"
)

var (
	errStreamManagementFailed   = errors.New("xmpp: server declined stream management enable/resume")
	errStreamManagementDisabled = errors.New("xmpp: stream management is not enabled on this stream")
)

// fatalStreamConditions end reconnection outright: a client must not
// attempt to resume or retry on the same connection.
var fatalStreamConditions = map[string]bool{
	stream.ErrSeeOtherHost:       true,
	stream.ErrConflict:           true,
	stream.ErrUnsupportedVersion: true,
}

// transientStreamConditions are conditions a client may reasonably
// retry by reconnecting.
var transientStreamConditions = map[string]bool{
	stream.ErrRemoteConnectionFailed: true,
	stream.ErrReset:                  true,
	stream.ErrConnectionTimeout:      true,
	stream.ErrSystemShutdown:         true,
}

// classifyStreamError determines whether a received stream error is
// fatal, transient, or merely informational. policy-violation and
// resource-constraint are only fatal when their <text> matches the
// specific server-kick and session-limit phrasing; any other text (or
// none) leaves them informational, since servers also send these two
// conditions for unrelated, reconnectable reasons. Everything not
// named above is informational too: the criticity this maps to
// governs whether an external auto-reconnector gives up, not whether
// the stream itself survives (a <stream:error> always ends the
// stream on the wire).
func classifyStreamError(e *stream.Error) (kind ErrorKind, criticity Criticity) {
	switch {
	case fatalStreamConditions[e.Condition]:
		return FatalStreamError, CriticityFatal
	case transientStreamConditions[e.Condition]:
		return TransientStreamError, CriticityError
	case e.Condition == stream.ErrPolicyViolation && strings.Contains(e.Text, "has been kicked"):
		return FatalStreamError, CriticityFatal
	case e.Condition == stream.ErrResourceConstraint && strings.Contains(e.Text, "max sessions reached"):
		return FatalStreamError, CriticityFatal
	default:
		return TransientStreamError, CriticityInfo
	}
}

// handleStreamError parses a <stream:error> and terminates the session,
// emitting a classified StreamErrorEvent before returning an error that
// ends Serve.
func (s *Session) handleStreamError(start xml.StartElement) error {
	var payload struct {
		XMLName xml.Name `xml:"error"`
		Inner   []byte   `xml:",innerxml"`
	}
	if err := s.reader.DecodeElement(&payload, &start); err != nil {
		return err
	}

	streamErr := parseStreamErrorBody(payload.Inner)
	kind, criticity := classifyStreamError(streamErr)
	s.emit(StreamErrorEvent{StreamErr: streamErr, Kind: kind})

	s.emit(ConnectionStatusEvent{
		Connected: false,
		Criticity: criticity,
		Reason:    streamErr.Condition,
		Details:   streamErr.Text,
	})
	_ = s.closeTransport()
	return NewError(kind, streamErr)
}

// parseStreamErrorBody extracts the condition element name and an
// optional <text> from a stream error's inner XML.
func parseStreamErrorBody(inner []byte) *stream.Error {
	dec := xml.NewDecoder(bytes.NewReader(inner))
	e := &stream.Error{}
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local == "text" {
			var text string
			_ = dec.DecodeElement(&text, &se)
			e.Text = text
			continue
		}
		if e.Condition == "" {
			e.Condition = se.Name.Local
			_ = dec.Skip()
		}
	}
	return e
}
