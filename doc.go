// Package xmpp implements the client-side XMPP session engine: stream
// negotiation, STARTTLS, SASL authentication, resource binding, stanza
// dispatch with IQ request/response correlation, and XEP-0198 Stream
// Management (acknowledgements and resumption).
//
// The engine is deliberately narrow: it owns exactly one bidirectional
// stream per Client/Session and understands only what RFC 6120/3920 and
// XEP-0198 require to reach and maintain a fully connected session.
// Application-level XMPP extensions (MUC, PubSub, OMEMO, file transfer,
// and the rest) are not part of this package; they attach through the
// extension pipeline in the plugin package instead. A minimal built-in
// extension set (service discovery, roster, message carbons, and
// keepalive ping) lives under extensions/ as both a working example of
// that interface and the pieces Client.Connect needs to reach
// FullyConnectedEvent.
//
// The library is organized into several packages:
//
//   - jid: immutable XMPP address values
//   - stanza: typed iq/message/presence wrappers over opaque XML payloads
//   - xml: streaming encoder/decoder for the XMPP XML stream
//   - transport: TCP+STARTTLS and WebSocket (RFC 7395) duplex channels
//   - dial: DNS SRV resolution, Direct TLS, and HTTP CONNECT proxying
//   - sasl: PLAIN and SCRAM-SHA-{1,256,512} mechanisms
//   - plugin: the ordered extension pipeline
//   - xmpp (this package): the stream engine itself
//
// Basic client usage:
//
//	client, err := xmpp.NewClient(jid.MustParse("user@example.com"), "password")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Connect(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	go client.Serve(nil)
//
//	for ev := range client.Session().Events() {
//	    switch e := ev.(type) {
//	    case xmpp.FullyConnectedEvent:
//	        // ready to send
//	    case xmpp.MessageEvent:
//	        _ = e.Message
//	    }
//	}
package xmpp
