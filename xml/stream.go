// Package xml wraps encoding/xml for use on a long-lived XMPP stream,
// where the document element (<stream:stream>) never closes and the
// unit of work is one first-level child element at a time (RFC 6120
// §4.2). The wrappers flush after every write, since a buffered
// half-element would stall the peer, and expose the token-level
// decoder surface the stream engine needs to dispatch children without
// materializing them.
package xml

import (
	"encoding/xml"
	"io"
)

// TokenReader reads XML tokens from a stream.
type TokenReader interface {
	Token() (xml.Token, error)
}

// TokenWriter writes XML tokens to a stream.
type TokenWriter interface {
	EncodeToken(t xml.Token) error
	Flush() error
}

// StreamReader decodes the inbound half of an XMPP stream. It is a
// thin veneer over xml.Decoder whose state carries the open document
// element across calls: once the stream header's StartElement has been
// consumed, each subsequent Token/DecodeElement call operates on the
// next first-level child.
type StreamReader struct {
	dec *xml.Decoder
}

// NewStreamReader creates a StreamReader over r. Callers rebuild the
// reader whenever the stream restarts (after STARTTLS or SASL), since
// the decoder's element stack belongs to the old stream document.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{dec: xml.NewDecoder(r)}
}

// Token returns the next raw token, including the EndElement that
// closes the stream document itself on an orderly shutdown.
func (sr *StreamReader) Token() (xml.Token, error) {
	return sr.dec.Token()
}

// Decode unmarshals the next element into v.
func (sr *StreamReader) Decode(v interface{}) error {
	return sr.dec.Decode(v)
}

// DecodeElement unmarshals the element whose StartElement the caller
// already pulled off via Token.
func (sr *StreamReader) DecodeElement(v interface{}, start *xml.StartElement) error {
	return sr.dec.DecodeElement(v, start)
}

// Skip consumes the remainder of the current element, children and
// all, leaving the decoder positioned at the next sibling.
func (sr *StreamReader) Skip() error {
	return sr.dec.Skip()
}

// Decoder exposes the underlying xml.Decoder.
func (sr *StreamReader) Decoder() *xml.Decoder {
	return sr.dec
}

// StreamWriter encodes the outbound half of an XMPP stream. Every
// write flushes: a stanza sitting in the encoder's buffer is invisible
// to the peer, and the transport invariant is one complete element per
// send.
type StreamWriter struct {
	enc *xml.Encoder
	raw io.Writer
}

// NewStreamWriter creates a StreamWriter over w. Like the reader, it
// is rebuilt on every stream restart.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{
		enc: xml.NewEncoder(w),
		raw: w,
	}
}

// Encode marshals v as a complete element and flushes it.
func (sw *StreamWriter) Encode(v interface{}) error {
	if err := sw.enc.Encode(v); err != nil {
		return err
	}
	return sw.enc.Flush()
}

// EncodeToken writes one token and flushes. Callers assembling an
// element token-by-token who want a single flush at the end should use
// Encoder and call Flush themselves.
func (sw *StreamWriter) EncodeToken(t xml.Token) error {
	if err := sw.enc.EncodeToken(t); err != nil {
		return err
	}
	return sw.enc.Flush()
}

// WriteRaw bypasses the encoder and writes data directly to the
// underlying writer. This is how the stream preamble goes out: the
// <stream:stream> header is an unclosed start tag that xml.Encoder
// cannot produce.
func (sw *StreamWriter) WriteRaw(data []byte) (int, error) {
	return sw.raw.Write(data)
}

// Flush flushes anything buffered in the encoder.
func (sw *StreamWriter) Flush() error {
	return sw.enc.Flush()
}

// Encoder exposes the underlying xml.Encoder for token-at-a-time
// element assembly.
func (sw *StreamWriter) Encoder() *xml.Encoder {
	return sw.enc
}
