package xml

import (
	"encoding/xml"
	"io"
)

// Encoder is the token sink handed to stream-feature advertisement
// callbacks. Unlike StreamWriter it does not flush after every token,
// so a feature element assembled from several tokens reaches the wire
// in one piece when the caller flushes.
type Encoder struct {
	enc *xml.Encoder
	raw io.Writer
}

// NewEncoder creates an Encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		enc: xml.NewEncoder(w),
		raw: w,
	}
}

// Encode marshals v as a complete element and flushes.
func (e *Encoder) Encode(v interface{}) error {
	if err := e.enc.Encode(v); err != nil {
		return err
	}
	return e.enc.Flush()
}

// EncodeToken buffers one token; call Flush once the element is
// complete.
func (e *Encoder) EncodeToken(t xml.Token) error {
	return e.enc.EncodeToken(t)
}

// EncodeElement marshals v using start as the element's start tag.
func (e *Encoder) EncodeElement(v interface{}, start xml.StartElement) error {
	if err := e.enc.EncodeElement(v, start); err != nil {
		return err
	}
	return e.enc.Flush()
}

// WriteRaw writes data directly to the underlying writer, skipping the
// encoder.
func (e *Encoder) WriteRaw(data []byte) (int, error) {
	return e.raw.Write(data)
}

// Flush writes out any buffered tokens.
func (e *Encoder) Flush() error {
	return e.enc.Flush()
}
