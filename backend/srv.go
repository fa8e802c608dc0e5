package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/miekg/dns"
)

// DefaultResolver is the local stub resolver.
const DefaultResolver = "127.0.0.53:53"

// ResolveSRV looks up the SRV records of name (e.g. "_anchor._tcp.example.com")
// and returns the base URL of the highest priority, highest weight target.
func ResolveSRV(ctx context.Context, name, scheme, resolverAddr string) (string, error) {
	if resolverAddr == "" {
		resolverAddr = DefaultResolver
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeSRV)
	m.RecursionDesired = true

	c := new(dns.Client)
	in, _, err := c.ExchangeContext(ctx, m, resolverAddr)
	if err != nil {
		return "", fmt.Errorf("could not resolve %s: %w", name, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("could not resolve %s: %s", name, dns.RcodeToString[in.Rcode])
	}

	records := make([]*dns.SRV, 0, len(in.Answer))
	for _, answer := range in.Answer {
		if srv, ok := answer.(*dns.SRV); ok {
			records = append(records, srv)
		}
	}

	best, err := pickSRV(records)
	if err != nil {
		return "", fmt.Errorf("could not resolve %s: %w", name, err)
	}

	return fmt.Sprintf("%s://%s:%d", scheme, strings.TrimSuffix(best.Target, "."), best.Port), nil
}

// pickSRV orders records by ascending priority, then descending weight.
func pickSRV(records []*dns.SRV) (*dns.SRV, error) {
	if len(records) == 0 {
		return nil, errors.New("no SRV records")
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Weight > records[j].Weight
	})
	return records[0], nil
}
