package dtlspsk

import (
	"context"
	"net"
)

// Family selects which address family a Resolver should return.
type Family int

const (
	FamilyAny Family = iota
	FamilyIPv4
	FamilyIPv6
)

// Resolver is this package's collaborator seam standing in for "the
// hostname resolver": the endpoint's one externally-caused, asynchronous,
// fallible dependency. The default implementation wraps net.Resolver;
// tests substitute a fake that returns canned addresses or errors without
// touching the network.
type Resolver interface {
	Resolve(ctx context.Context, host string, family Family) ([]net.IP, error)
}

// netResolver is the default Resolver, backed by net.Resolver.
type netResolver struct {
	resolver *net.Resolver
}

// NewResolver returns the default net.Resolver-backed Resolver.
func NewResolver() Resolver {
	return &netResolver{resolver: net.DefaultResolver}
}

func (r *netResolver) Resolve(ctx context.Context, host string, family Family) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	addrs, err := r.resolver.LookupIP(ctx, resolveNetwork(family), host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, ErrResolveFailed
	}
	return addrs, nil
}

func resolveNetwork(family Family) string {
	switch family {
	case FamilyIPv4:
		return "ip4"
	case FamilyIPv6:
		return "ip6"
	default:
		return "ip"
	}
}
