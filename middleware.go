package xmpp

import (
	"context"
	"io"
	"log"

	"github.com/quietwire/xmpp/stanza"
)

// discardLogger is the default target for LogMiddleware when no
// *log.Logger is supplied, so library consumers never get stderr
// output they didn't ask for.
var discardLogger = log.New(io.Discard, "", 0)

// Middleware wraps a Handler to add cross-cutting behavior.
type Middleware func(Handler) Handler

// Chain applies a series of middleware to a handler.
func Chain(handler Handler, middleware ...Middleware) Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}

// LogMiddleware logs incoming stanzas to logger. A nil logger discards
// output.
func LogMiddleware(logger *log.Logger) Middleware {
	if logger == nil {
		logger = discardLogger
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, session *Session, st stanza.Stanza) error {
			header := st.GetHeader()
			logger.Printf("xmpp: %s from=%s to=%s id=%s type=%s",
				st.StanzaType(), header.From, header.To, header.ID, header.Type)
			return next.HandleStanza(ctx, session, st)
		})
	}
}

// RecoverMiddleware recovers from panics in handlers, logging to logger.
// A nil logger discards output.
func RecoverMiddleware(logger *log.Logger) Middleware {
	if logger == nil {
		logger = discardLogger
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, session *Session, st stanza.Stanza) error {
			defer func() {
				if r := recover(); r != nil {
					logger.Printf("xmpp: recovered from panic: %v", r)
				}
			}()
			return next.HandleStanza(ctx, session, st)
		})
	}
}
