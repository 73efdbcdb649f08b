// Package dial provides connection dialing with DNS SRV resolution.
package dial

import (
	"context"
	"fmt"
	"net"
	"sort"
)

// The four SRV services RFC 6120 §3.2.1 and XEP-0368 define for XMPP.
const (
	srvClient    = "xmpp-client"
	srvServer    = "xmpp-server"
	srvClientTLS = "xmpps-client"
	srvServerTLS = "xmpps-server"
)

// SRVRecord is one candidate endpoint from an SRV answer, already
// ordered for dialing.
type SRVRecord struct {
	Target   string
	Port     uint16
	Priority uint16
	Weight   uint16
}

// Resolver turns an XMPP domain into an ordered list of endpoints to
// try. The lookup function is swappable for tests.
type Resolver struct {
	lookupSRV func(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// NewResolver creates a Resolver backed by the system resolver.
func NewResolver() *Resolver {
	return &Resolver{
		lookupSRV: net.DefaultResolver.LookupSRV,
	}
}

// ResolveClient resolves the client-to-server endpoints for domain
// (_xmpp-client._tcp, RFC 6120 §3.2.1).
func (r *Resolver) ResolveClient(ctx context.Context, domain string) ([]SRVRecord, error) {
	return r.lookup(ctx, srvClient, domain)
}

// ResolveServer resolves the server-to-server endpoints for domain.
func (r *Resolver) ResolveServer(ctx context.Context, domain string) ([]SRVRecord, error) {
	return r.lookup(ctx, srvServer, domain)
}

// ResolveClientTLS resolves the Direct TLS client endpoints for domain
// (_xmpps-client._tcp, XEP-0368).
func (r *Resolver) ResolveClientTLS(ctx context.Context, domain string) ([]SRVRecord, error) {
	return r.lookup(ctx, srvClientTLS, domain)
}

// ResolveServerTLS resolves the Direct TLS server endpoints for domain.
func (r *Resolver) ResolveServerTLS(ctx context.Context, domain string) ([]SRVRecord, error) {
	return r.lookup(ctx, srvServerTLS, domain)
}

func (r *Resolver) lookup(ctx context.Context, service, domain string) ([]SRVRecord, error) {
	_, answers, err := r.lookupSRV(ctx, service, "tcp", domain)
	if err != nil {
		return nil, fmt.Errorf("dial: SRV lookup for _%s._tcp.%s: %w", service, domain, err)
	}

	records := make([]SRVRecord, 0, len(answers))
	for _, a := range answers {
		// A single record with target "." is RFC 2782's way of saying
		// the service is decidedly not offered at this domain.
		if a.Target == "." || a.Target == "" {
			continue
		}
		records = append(records, SRVRecord{
			Target:   a.Target,
			Port:     a.Port,
			Priority: a.Priority,
			Weight:   a.Weight,
		})
	}

	// RFC 2782 dial order: lowest priority first; within a priority,
	// weight biases selection toward heavier records. A full weighted
	// random shuffle buys little for the one or two records XMPP
	// domains publish, so heavier-first stands in for it.
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Weight > records[j].Weight
	})

	return records, nil
}
