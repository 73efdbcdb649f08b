package xml

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
)

func TestEncoderTokensBufferUntilFlush(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	start := xml.StartElement{Name: xml.Name{Space: "urn:ietf:params:xml:ns:xmpp-tls", Local: "starttls"}}
	if err := enc.EncodeToken(start); err != nil {
		t.Fatalf("EncodeToken start: %v", err)
	}
	if err := enc.EncodeToken(xml.EndElement{Name: start.Name}); err != nil {
		t.Fatalf("EncodeToken end: %v", err)
	}
	if err := enc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, `<starttls xmlns="urn:ietf:params:xml:ns:xmpp-tls">`) {
		t.Errorf("flushed output = %q, want the starttls element", got)
	}
}

func TestEncoderEncodeFlushesImmediately(t *testing.T) {
	t.Parallel()
	type mechanisms struct {
		XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl mechanisms"`
		Mechanism []string `xml:"mechanism"`
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.Encode(mechanisms{Mechanism: []string{"SCRAM-SHA-256", "PLAIN"}}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "<mechanism>SCRAM-SHA-256</mechanism>") ||
		!strings.Contains(got, "<mechanism>PLAIN</mechanism>") {
		t.Errorf("Encode wrote %q, want both mechanism children", got)
	}
}

func TestEncoderEncodeElementUsesGivenStart(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	start := xml.StartElement{Name: xml.Name{Space: "urn:ietf:params:xml:ns:xmpp-bind", Local: "bind"}}
	if err := enc.EncodeElement(struct{}{}, start); err != nil {
		t.Fatalf("EncodeElement: %v", err)
	}
	if got := buf.String(); !strings.Contains(got, `xmlns="urn:ietf:params:xml:ns:xmpp-bind"`) {
		t.Errorf("output = %q, want the bind namespace on the element", got)
	}
}

func TestEncoderWriteRaw(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	raw := []byte(`<proceed xmlns='urn:ietf:params:xml:ns:xmpp-tls'/>`)
	n, err := enc.WriteRaw(raw)
	if err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	if n != len(raw) {
		t.Errorf("WriteRaw wrote %d bytes, want %d", n, len(raw))
	}
	if buf.String() != string(raw) {
		t.Errorf("raw output = %q, want input verbatim", buf.String())
	}
}
