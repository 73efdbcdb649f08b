package xml

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
)

// streamFragment is a stream header followed by two first-level
// children, the shape every StreamReader in the engine actually sees.
const streamFragment = `<stream:stream xmlns="jabber:client" ` +
	`xmlns:stream="http://etherx.jabber.org/streams" version="1.0">` +
	`<message id="m1"><body>ahoy</body></message>` +
	`<presence id="p1"/>` +
	`</stream:stream>`

func TestStreamReaderWalksFirstLevelChildren(t *testing.T) {
	t.Parallel()
	sr := NewStreamReader(strings.NewReader(streamFragment))

	tok, err := sr.Token()
	if err != nil {
		t.Fatalf("Token (header): %v", err)
	}
	hdr, ok := tok.(xml.StartElement)
	if !ok || hdr.Name.Local != "stream" {
		t.Fatalf("first token = %T %v, want the <stream:stream> start", tok, tok)
	}

	var msg struct {
		XMLName xml.Name `xml:"message"`
		ID      string   `xml:"id,attr"`
		Body    string   `xml:"body"`
	}
	tok, err = sr.Token()
	if err != nil {
		t.Fatalf("Token (message): %v", err)
	}
	start := tok.(xml.StartElement)
	if err := sr.DecodeElement(&msg, &start); err != nil {
		t.Fatalf("DecodeElement: %v", err)
	}
	if msg.ID != "m1" || msg.Body != "ahoy" {
		t.Errorf("decoded message = %+v, want id=m1 body=ahoy", msg)
	}

	tok, err = sr.Token()
	if err != nil {
		t.Fatalf("Token (presence): %v", err)
	}
	if se, ok := tok.(xml.StartElement); !ok || se.Name.Local != "presence" {
		t.Fatalf("after message: %T %v, want <presence>", tok, tok)
	}
	if err := sr.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	// The stream document's own end tag must surface, not vanish: the
	// engine treats it as the peer's orderly close.
	tok, err = sr.Token()
	if err != nil {
		t.Fatalf("Token (end): %v", err)
	}
	if end, ok := tok.(xml.EndElement); !ok || end.Name.Local != "stream" {
		t.Errorf("final token = %T %v, want the </stream:stream> end tag", tok, tok)
	}
}

func TestStreamReaderSkipConsumesNestedChildren(t *testing.T) {
	t.Parallel()
	input := `<iq id="1" type="result">` +
		`<query xmlns="jabber:iq:roster"><item jid="a@b"/><item jid="c@d"/></query>` +
		`</iq><iq id="2" type="result"/>`
	sr := NewStreamReader(strings.NewReader(input))

	tok, err := sr.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if se := tok.(xml.StartElement); se.Name.Local != "iq" {
		t.Fatalf("expected first <iq>, got <%s>", se.Name.Local)
	}
	if err := sr.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	tok, err = sr.Token()
	if err != nil {
		t.Fatalf("Token after skip: %v", err)
	}
	se, ok := tok.(xml.StartElement)
	if !ok || se.Name.Local != "iq" {
		t.Fatalf("after skip: %T %v, want the second <iq>", tok, tok)
	}
	var id string
	for _, a := range se.Attr {
		if a.Name.Local == "id" {
			id = a.Value
		}
	}
	if id != "2" {
		t.Errorf("second iq id = %q, want %q (skip must consume all of the first)", id, "2")
	}
}

func TestStreamWriterEncodeFlushesWholeElement(t *testing.T) {
	t.Parallel()
	type ping struct {
		XMLName xml.Name `xml:"urn:xmpp:ping ping"`
	}

	var buf bytes.Buffer
	sw := NewStreamWriter(&buf)
	if err := sw.Encode(ping{}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Flushed immediately: nothing may sit in the encoder's buffer
	// where the peer cannot see it.
	if got := buf.String(); !strings.Contains(got, `<ping xmlns="urn:xmpp:ping">`) {
		t.Errorf("Encode wrote %q, want a flushed <ping> element", got)
	}
}

func TestStreamWriterWriteRawBypassesEncoder(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sw := NewStreamWriter(&buf)

	// The stream header is an unclosed start tag, exactly what the
	// encoder cannot emit and WriteRaw exists for.
	header := []byte(`<stream:stream to='example.net' version='1.0'>`)
	n, err := sw.WriteRaw(header)
	if err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	if n != len(header) {
		t.Errorf("WriteRaw wrote %d bytes, want %d", n, len(header))
	}
	if buf.String() != string(header) {
		t.Errorf("raw output = %q, want the header verbatim", buf.String())
	}
}
