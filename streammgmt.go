package xmpp

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"sync"

	"github.com/quietwire/xmpp/internal/ns"
	"github.com/quietwire/xmpp/stanza"
	xmppxml "github.com/quietwire/xmpp/xml"
)

// smMod wraps a counter increment at 2^32. uint32 arithmetic already
// wraps on overflow in Go, so this just documents the invariant at each
// call site instead of the buggy ">= max -> reset to 0" comparison.
func smMod(n uint32) uint32 {
	return n
}

// streamManagement tracks XEP-0198 state for a session. All three
// counters and the unacked queue are guarded by mu. There is no
// separate count of stanzas received but not yet handled: inbound is
// the only receive-side counter.
type streamManagement struct {
	mu sync.Mutex

	enabled  bool
	resumeOK bool
	id       string
	location string

	// inbound is the number of stanzas this side has handled (reported
	// to the peer in an <a>).
	inbound uint32
	// outbound is the number of stanzas this side has sent (compared
	// against the peer's reported h to know what's been acked).
	outbound uint32
	// peerAcked is the highest outbound count the peer has confirmed
	// receiving via its own <a h="...">.
	peerAcked uint32

	unacked []unackedStanza
}

type unackedStanza struct {
	seq uint32
	st  stanza.Stanza
}

func (sm *streamManagement) countInbound() {
	sm.mu.Lock()
	sm.inbound = smMod(sm.inbound + 1)
	sm.mu.Unlock()
}

func (sm *streamManagement) recordOutbound(st stanza.Stanza) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.enabled {
		return
	}
	sm.outbound = smMod(sm.outbound + 1)
	sm.unacked = append(sm.unacked, unackedStanza{seq: sm.outbound, st: st})
}

// ack drops unacked entries up to and including the server's reported h.
func (sm *streamManagement) ack(h uint32) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.peerAcked = h
	i := 0
	for i < len(sm.unacked) && sm.unacked[i].seq <= h {
		i++
	}
	sm.unacked = sm.unacked[i:]
}

// unackedSnapshot returns the stanzas still awaiting acknowledgment, in
// the order they were originally sent. The queue itself is untouched:
// entries leave it only through ack.
func (sm *streamManagement) unackedSnapshot() []stanza.Stanza {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]stanza.Stanza, len(sm.unacked))
	for i, u := range sm.unacked {
		out[i] = u.st
	}
	return out
}

// resendUnacked rewrites every stanza still awaiting acknowledgment, in
// original send order, directly on the writer. It deliberately bypasses
// Send: output filters already ran when each stanza first went out, and
// recordOutbound must not run again — the entries stay queued under
// their original sequence numbers until an <a/> covers them, instead of
// being appended a second time as if they were fresh sends.
func (s *Session) resendUnacked() int {
	stanzas := s.sm.unackedSnapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stanzas {
		_ = s.writer.Encode(st)
	}
	return len(stanzas)
}

func (sm *streamManagement) handledCount() uint32 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.inbound
}

// writeEmptyElement writes a single self-closing element as one flush,
// so framed transports such as WebSocket send it as one frame.
func writeEmptyElement(w *xmppxml.StreamWriter, name xml.Name, attrs []xml.Attr) error {
	start := xml.StartElement{Name: name, Attr: attrs}
	enc := w.Encoder()
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if err := enc.EncodeToken(xml.EndElement{Name: start.Name}); err != nil {
		return err
	}
	return w.Flush()
}

// smEnable writes <enable xmlns='urn:xmpp:sm:3' resume='true'/>.
func smEnable(ctx context.Context, w *xmppxml.StreamWriter, resume bool) error {
	var attrs []xml.Attr
	if resume {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "resume"}, Value: "true"})
	}
	return writeEmptyElement(w, xml.Name{Space: ns.SM, Local: "enable"}, attrs)
}

// smResume writes <resume xmlns='urn:xmpp:sm:3' h='H' previd='ID'/>.
func smResume(w *xmppxml.StreamWriter, h uint32, previd string) error {
	return writeEmptyElement(w, xml.Name{Space: ns.SM, Local: "resume"}, []xml.Attr{
		{Name: xml.Name{Local: "h"}, Value: strconv.FormatUint(uint64(h), 10)},
		{Name: xml.Name{Local: "previd"}, Value: previd},
	})
}

// smRequest writes <r xmlns='urn:xmpp:sm:3'/>, requesting an ack.
func smRequest(w *xmppxml.StreamWriter) error {
	return writeEmptyElement(w, xml.Name{Space: ns.SM, Local: "r"}, nil)
}

// smAnswer writes <a xmlns='urn:xmpp:sm:3' h='H'/>, answering a peer's <r>.
func smAnswer(w *xmppxml.StreamWriter, h uint32) error {
	return writeEmptyElement(w, xml.Name{Space: ns.SM, Local: "a"}, []xml.Attr{
		{Name: xml.Name{Local: "h"}, Value: strconv.FormatUint(uint64(h), 10)},
	})
}

// handleSMElement processes an inbound <r>/<a>/<enabled>/<resumed>/<failed>
// element in the urn:xmpp:sm:3 namespace.
func (s *Session) handleSMElement(ctx context.Context, start xml.StartElement) error {
	switch start.Name.Local {
	case "r":
		if err := s.reader.Skip(); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return smAnswer(s.writer, s.sm.handledCount())
	case "a":
		var h uint32
		for _, a := range start.Attr {
			if a.Name.Local == "h" {
				if v, err := strconv.ParseUint(a.Value, 10, 32); err == nil {
					h = uint32(v)
				}
			}
		}
		if err := s.reader.Skip(); err != nil {
			return err
		}
		s.sm.ack(h)
		return nil
	case "enabled":
		var enabled struct {
			ID       string `xml:"id,attr"`
			Resume   bool   `xml:"resume,attr"`
			Location string `xml:"location,attr"`
		}
		if err := s.reader.DecodeElement(&enabled, &start); err != nil {
			return err
		}
		s.sm.mu.Lock()
		s.sm.enabled = true
		s.sm.resumeOK = enabled.Resume
		s.sm.id = enabled.ID
		s.sm.location = enabled.Location
		s.sm.mu.Unlock()
		return nil
	case "resumed":
		var resumed struct {
			H      string `xml:"h,attr"`
			PrevID string `xml:"previd,attr"`
		}
		if err := s.reader.DecodeElement(&resumed, &start); err != nil {
			return err
		}
		h, _ := strconv.ParseUint(resumed.H, 10, 32)
		s.sm.ack(uint32(h))
		s.sm.mu.Lock()
		s.sm.enabled = true
		s.sm.mu.Unlock()
		s.emit(ResumedEvent{Resent: s.resendUnacked()})
		return nil
	case "failed":
		if err := s.reader.Skip(); err != nil {
			return err
		}
		s.sm.mu.Lock()
		s.sm.enabled = false
		s.sm.mu.Unlock()
		s.emit(StreamManagementFailedEvent{Err: errStreamManagementFailed})
		return nil
	default:
		return s.reader.Skip()
	}
}

// RequestAck writes <r xmlns='urn:xmpp:sm:3'/>, asking the peer to
// report its handled count. The peer's <a/> reply is consumed by
// Serve's stream-management dispatch, which trims the unacked queue;
// callers use this to bound the queue after a burst of sends.
func (s *Session) RequestAck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return NewError(NotConnected, ErrNotConnected)
	default:
	}

	s.sm.mu.Lock()
	enabled := s.sm.enabled
	s.sm.mu.Unlock()
	if !enabled {
		return errStreamManagementDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return smRequest(s.writer)
}

// ResumeID returns the XEP-0198 resume id the session negotiated, and
// whether resumption is still available (cleared by an orderly close
// or a failed resume attempt).
func (s *Session) ResumeID() (string, bool) {
	s.sm.mu.Lock()
	defer s.sm.mu.Unlock()
	return s.sm.id, s.sm.resumeOK
}

// HandledCount returns the number of inbound stanzas this session has
// counted so far, the h value to present in a future resume attempt.
func (s *Session) HandledCount() uint32 {
	return s.sm.handledCount()
}

// EnableStreamManagement requests XEP-0198 stream management on a
// freshly bound session: it writes <enable resume="true"/> and reads
// the reply directly off the wire (this runs during the post-Bound
// sequence, before Serve starts consuming the stream). A <failed/>
// reply emits StreamManagementFailedEvent and returns
// errStreamManagementFailed; the client's post-Bound sequence ignores
// that error, since SM is optional and its absence is non-fatal.
func (s *Session) EnableStreamManagement(ctx context.Context) error {
	if err := smEnable(ctx, s.writer, true); err != nil {
		return NewError(ConnectionLost, err)
	}

	tok, err := s.reader.Token()
	if err != nil {
		return NewError(ConnectionLost, err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name.Space != ns.SM {
		return NewError(ProtocolViolation, fmt.Errorf("xmpp: expected sm enabled/failed, got %v", tok))
	}

	switch start.Name.Local {
	case "enabled":
		var enabled struct {
			ID       string `xml:"id,attr"`
			Resume   bool   `xml:"resume,attr"`
			Location string `xml:"location,attr"`
		}
		if err := s.reader.DecodeElement(&enabled, &start); err != nil {
			return NewError(ProtocolViolation, err)
		}
		s.sm.mu.Lock()
		s.sm.enabled = true
		s.sm.resumeOK = enabled.Resume
		s.sm.id = enabled.ID
		s.sm.location = enabled.Location
		s.sm.mu.Unlock()
		return nil
	case "failed":
		if err := s.reader.Skip(); err != nil {
			return NewError(ProtocolViolation, err)
		}
		s.emit(StreamManagementFailedEvent{Err: errStreamManagementFailed})
		return errStreamManagementFailed
	default:
		return NewError(ProtocolViolation, fmt.Errorf("xmpp: unexpected sm element %q during enable", start.Name.Local))
	}
}

// ResumeStreamManagement attempts to resume a prior stream-management
// session on a freshly opened and authenticated (but not yet bound)
// stream: previd is the resume id captured from the session that was
// lost, and lastHandled is the h value to present (the count of
// inbound stanzas handled before the drop). On success the session
// reaches StateBound|StateReady directly, bind is never attempted, and
// any stanzas still unacknowledged from the prior stream are resent in
// their original order. On <failed/>, resumption state is cleared and
// the caller must fall back to a fresh bind.
func (s *Session) ResumeStreamManagement(ctx context.Context, previd string, lastHandled uint32) error {
	if err := smResume(s.writer, lastHandled, previd); err != nil {
		return NewError(ConnectionLost, err)
	}

	tok, err := s.reader.Token()
	if err != nil {
		return NewError(ConnectionLost, err)
	}
	start, ok := tok.(xml.StartElement)
	if !ok || start.Name.Space != ns.SM {
		return NewError(ProtocolViolation, fmt.Errorf("xmpp: expected sm resumed/failed, got %v", tok))
	}

	switch start.Name.Local {
	case "resumed":
		var resumed struct {
			H string `xml:"h,attr"`
		}
		if err := s.reader.DecodeElement(&resumed, &start); err != nil {
			return NewError(ProtocolViolation, err)
		}
		h, _ := strconv.ParseUint(resumed.H, 10, 32)
		s.sm.ack(uint32(h))
		s.sm.mu.Lock()
		s.sm.enabled = true
		s.sm.resumeOK = true
		s.sm.id = previd
		s.sm.mu.Unlock()
		s.SetState(StateBound | StateReady)

		s.emit(ResumedEvent{Resent: s.resendUnacked()})
		s.emit(StatusEvent{Status: Active})
		return nil
	case "failed":
		if err := s.reader.Skip(); err != nil {
			return NewError(ProtocolViolation, err)
		}
		s.sm.mu.Lock()
		s.sm.enabled = false
		s.sm.resumeOK = false
		s.sm.id = ""
		s.sm.mu.Unlock()
		s.emit(StreamManagementFailedEvent{Err: errStreamManagementFailed})
		return NewError(TransientStreamError, errStreamManagementFailed)
	default:
		return NewError(ProtocolViolation, fmt.Errorf("xmpp: unexpected sm element %q during resume", start.Name.Local))
	}
}
