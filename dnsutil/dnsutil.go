// Package dnsutil holds small name and message helpers shared by the
// resolver, the blocklist and the cache.
package dnsutil

import (
	"strings"
	"time"

	"github.com/miekg/dns"
)

// MaxTTL caps the lifetime derived from record TTLs.
const MaxTTL = 24 * time.Hour

// Canonical returns the lowercase form of name without trailing root dots.
// The root name canonicalizes to the empty string. Only ASCII letters are
// folded, matching DNS case-insensitivity.
func Canonical(name string) string {
	for len(name) > 0 && name[len(name)-1] == '.' {
		name = name[:len(name)-1]
	}

	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			return lowerASCII(name)
		}
	}

	return name
}

func lowerASCII(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// FormatQuestion renders q as "name CLASS TYPE" for logs.
func FormatQuestion(q dns.Question) string {
	return strings.ToLower(q.Name) + " " + dns.ClassToString[q.Qclass] + " " + dns.TypeToString[q.Qtype]
}

// MinimalTTL returns the smallest TTL of the answer and authority records of
// msg. A message without such records gets fallback. The result never
// exceeds MaxTTL.
func MinimalTTL(msg *dns.Msg, fallback time.Duration) time.Duration {
	found := false
	minTTL := MaxTTL

	for _, section := range [][]dns.RR{msg.Answer, msg.Ns} {
		for _, rr := range section {
			found = true
			if ttl := time.Duration(rr.Header().Ttl) * time.Second; ttl < minTTL {
				minTTL = ttl
			}
		}
	}

	if !found {
		minTTL = fallback
	}

	if minTTL > MaxTTL {
		return MaxTTL
	}

	return minTTL
}

// SameQuestion reports whether a and b ask the same question, ignoring name case.
func SameQuestion(a, b dns.Question) bool {
	return a.Qtype == b.Qtype && a.Qclass == b.Qclass && Canonical(a.Name) == Canonical(b.Name)
}
