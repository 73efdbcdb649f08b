package xmpp

// Negotiator handles XMPP stream negotiation.
type Negotiator struct {
	features []StreamFeature
	stopAt   SessionState
}

// NewNegotiator creates a new stream negotiator that drives features
// until the session reaches StateBound (the ordinary fresh-connect
// target). Use StopAt to negotiate only a prefix of the state machine,
// e.g. TLS+SASL alone ahead of a stream-management resume attempt.
func NewNegotiator(features ...StreamFeature) *Negotiator {
	return &Negotiator{features: features, stopAt: StateBound}
}

// StopAt overrides the state mask that ends Negotiate successfully
// once reached, instead of the default StateBound.
func (n *Negotiator) StopAt(mask SessionState) {
	n.stopAt = mask
}

// AddFeature adds a stream feature to the negotiator.
func (n *Negotiator) AddFeature(f StreamFeature) {
	n.features = append(n.features, f)
}

// Features returns the features available for the given session state.
func (n *Negotiator) Features(state SessionState) []StreamFeature {
	var available []StreamFeature
	for _, f := range n.features {
		if f.Necessary != 0 && (state&f.Necessary) != f.Necessary {
			continue
		}
		if f.Prohibited != 0 && (state&f.Prohibited) != 0 {
			continue
		}
		available = append(available, f)
	}
	return available
}

// Negotiate is implemented in engine.go; it drives the full client-side
// stream negotiation state machine using the features registered here.
