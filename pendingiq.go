package xmpp

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"sync"

	"github.com/quietwire/xmpp/internal/ns"
	"github.com/quietwire/xmpp/stanza"
)

// iqWaiter is either a synchronous waiter (ch non-nil, cb nil) or an
// asynchronous callback (cb non-nil, ch nil); never both.
type iqWaiter struct {
	ch chan *stanza.IQ
	cb func(*stanza.IQ)
}

// pendingIQTable correlates outbound IQ requests with their responses
// by stanza ID.
type pendingIQTable struct {
	mu      sync.Mutex
	waiters map[string]iqWaiter
}

func (t *pendingIQTable) init() {
	t.waiters = make(map[string]iqWaiter)
}

func (t *pendingIQTable) registerSync(id string) chan *stanza.IQ {
	ch := make(chan *stanza.IQ, 1)
	t.mu.Lock()
	t.waiters[id] = iqWaiter{ch: ch}
	t.mu.Unlock()
	return ch
}

func (t *pendingIQTable) registerAsync(id string, cb func(*stanza.IQ)) {
	t.mu.Lock()
	t.waiters[id] = iqWaiter{cb: cb}
	t.mu.Unlock()
}

func (t *pendingIQTable) forget(id string) {
	t.mu.Lock()
	delete(t.waiters, id)
	t.mu.Unlock()
}

// deliver routes an inbound result/error IQ to its waiter, reporting
// whether one was found (and thus the IQ is claimed, not forwarded to
// the handler pipeline).
func (t *pendingIQTable) deliver(iq *stanza.IQ) bool {
	t.mu.Lock()
	w, ok := t.waiters[iq.ID]
	if ok {
		delete(t.waiters, iq.ID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if w.ch != nil {
		w.ch <- iq
	} else if w.cb != nil {
		w.cb(iq)
	}
	return true
}

// SendIQ sends iq and blocks until a matching result or error IQ
// arrives, or ctx is done. The returned IQ has Type IQResult or IQError.
func (s *Session) SendIQ(ctx context.Context, iq *stanza.IQ) (*stanza.IQ, error) {
	if iq.ID == "" {
		iq.ID = stanza.GenerateID()
	}
	ch := s.pending.registerSync(iq.ID)

	if err := s.Send(ctx, iq); err != nil {
		s.pending.forget(iq.ID)
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		s.pending.forget(iq.ID)
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, NewError(Cancelled, ctx.Err())
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && s.isPingToServer(iq) {
			s.emit(ConnectionStatusEvent{
				Connected: false,
				Criticity: CriticityError,
				Reason:    "ping-timeout",
				Details:   "no response to keepalive ping before deadline",
			})
			return nil, NewError(ConnectionLost, ctx.Err())
		}
		return nil, NewError(Timeout, ctx.Err())
	case <-s.closed:
		s.pending.forget(iq.ID)
		return nil, NewError(NotConnected, ErrNotConnected)
	}
}

// isPingToServer reports whether iq is an XEP-0199 ping addressed to
// the connected server's own domain (or left unaddressed, which also
// means the server per RFC 6120). A timeout on such a ping means the
// connection itself is dead, not merely that one request was slow, so
// SendIQ escalates it to ConnectionLost instead of a plain Timeout.
func (s *Session) isPingToServer(iq *stanza.IQ) bool {
	if !bytes.Contains(iq.Query, []byte(ns.Ping)) {
		return false
	}
	if iq.To.IsZero() {
		return true
	}
	return iq.To.IsDomainOnly() && iq.To.Domain() == s.remoteJID.Domain()
}

// readIQResponseSync reads stream tokens directly off the wire,
// skipping anything that is not an iq with the wanted id. It must only
// be used before Serve begins consuming the stream: the post-Bound
// sequence runs synchronously, one request at a time, while nothing
// else is reading.
func (s *Session) readIQResponseSync(id string) (*stanza.IQ, error) {
	for {
		tok, err := s.reader.Token()
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "iq" {
			if err := s.reader.Skip(); err != nil {
				return nil, err
			}
			continue
		}
		iq := &stanza.IQ{}
		if err := s.reader.DecodeElement(iq, &start); err != nil {
			return nil, err
		}
		if iq.ID == id {
			return iq, nil
		}
	}
}

// SendIQSync sends iq and reads the stream directly for its correlated
// reply instead of going through the pending-iq table. Use it only for
// the post-Bound sequence, which runs before Serve starts consuming
// the stream; once Serve is running, use SendIQ.
func (s *Session) SendIQSync(ctx context.Context, iq *stanza.IQ) (*stanza.IQ, error) {
	if iq.ID == "" {
		iq.ID = stanza.GenerateID()
	}
	if err := s.Send(ctx, iq); err != nil {
		return nil, err
	}
	return s.readIQResponseSync(iq.ID)
}

// SendIQAsync sends iq and invokes cb from the session's read loop when
// a matching response arrives. cb must not block or call back into the
// session synchronously in a way that could deadlock the read loop.
func (s *Session) SendIQAsync(ctx context.Context, iq *stanza.IQ, cb func(*stanza.IQ)) error {
	if iq.ID == "" {
		iq.ID = stanza.GenerateID()
	}
	s.pending.registerAsync(iq.ID, cb)
	if err := s.Send(ctx, iq); err != nil {
		s.pending.forget(iq.ID)
		return err
	}
	return nil
}
