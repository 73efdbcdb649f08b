package sasl

// External implements the EXTERNAL mechanism (RFC 4422 appendix A):
// authentication is taken from a layer outside SASL, in practice the
// TLS client certificate. The only payload is the optional
// authorization identity; empty means "whatever the certificate says".
type External struct {
	authzID   string
	completed bool
}

// NewExternal creates a new EXTERNAL mechanism.
func NewExternal(authzID string) *External {
	return &External{authzID: authzID}
}

// Name returns "EXTERNAL".
func (e *External) Name() string { return "EXTERNAL" }

// Start sends the requested authorization identity, possibly empty.
func (e *External) Start() ([]byte, error) {
	e.completed = true
	return []byte(e.authzID), nil
}

// Next is a no-op: EXTERNAL has no challenge step.
func (e *External) Next(_ []byte) ([]byte, error) {
	return nil, nil
}

// Completed returns true once Start has run.
func (e *External) Completed() bool { return e.completed }
