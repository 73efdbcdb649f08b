package sasl

// Plain implements the PLAIN mechanism (RFC 4616): a single message of
// authzid, authcid, and password joined by NUL octets. It carries the
// password in the clear, which is why the stream engine lists it last
// and servers generally refuse to offer it before TLS.
type Plain struct {
	creds     Credentials
	completed bool
}

// NewPlain creates a new PLAIN mechanism.
func NewPlain(creds Credentials) *Plain {
	return &Plain{creds: creds}
}

// Name returns "PLAIN".
func (p *Plain) Name() string { return "PLAIN" }

// Start builds the one and only message:
//
//	message = [authzid] UTF8NUL authcid UTF8NUL passwd
//
// The authorization identity is usually empty, telling the server to
// derive it from the authentication identity (RFC 4616 §2).
func (p *Plain) Start() ([]byte, error) {
	msg := make([]byte, 0, len(p.creds.AuthzID)+len(p.creds.Username)+len(p.creds.Password)+2)
	msg = append(msg, p.creds.AuthzID...)
	msg = append(msg, 0)
	msg = append(msg, p.creds.Username...)
	msg = append(msg, 0)
	msg = append(msg, p.creds.Password...)
	p.completed = true
	return msg, nil
}

// Next is a no-op: PLAIN has no challenge step.
func (p *Plain) Next(_ []byte) ([]byte, error) {
	return nil, nil
}

// Completed returns true once Start has produced the message.
func (p *Plain) Completed() bool { return p.completed }
