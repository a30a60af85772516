package blocklist

import (
	"strings"

	"github.com/miekg/dns"

	"github.com/russdns/russdns/dnsutil"
)

// Snapshot is an immutable set of canonical domain names.
// It is never modified after NewSnapshot returns, so any number of
// goroutines may read it without locking.
type Snapshot struct {
	m map[string]struct{}
}

// NewSnapshot returns a snapshot holding the canonical form of each domain.
// Empty names are skipped.
func NewSnapshot(domains ...string) *Snapshot {
	s := &Snapshot{m: make(map[string]struct{}, len(domains))}

	for _, d := range domains {
		d = dnsutil.Canonical(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		s.m[d] = struct{}{}
	}

	return s
}

// Contains reports exact membership of a canonical name.
func (s *Snapshot) Contains(name string) bool {
	if s == nil {
		return false
	}

	_, ok := s.m[name]
	return ok
}

// Len returns the number of listed domains.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}

	return len(s.m)
}

// Blocks reports whether name or one of its parent domains is listed.
//
// The full name is checked first, then each suffix obtained by removing
// leading labels, as long as the suffix keeps at least two labels. A
// listed top-level label such as "com" therefore blocks only the literal
// query "com" and never acts as a wildcard for names under it.
func (s *Snapshot) Blocks(name string) bool {
	if s.Len() == 0 {
		return false
	}

	name = dnsutil.Canonical(name)
	if name == "" {
		return false
	}

	if s.Contains(name) {
		return true
	}

	// an escaped dot ("a\.example.com") stays inside its label
	off := 0
	for {
		var end bool
		if off, end = dns.NextLabel(name, off); end {
			return false
		}

		tail := name[off:]
		if dns.CountLabel(tail) < 2 {
			return false
		}

		if s.Contains(tail) {
			return true
		}
	}
}
