package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/miekg/dns"
)

// keyBuffer holds a reusable buffer for key generation.
type keyBuffer struct {
	buf [256]byte
}

var keyBufferPool = sync.Pool{
	New: func() any {
		return new(keyBuffer)
	},
}

// Key returns the signature of a question: a hash over its class, type and
// canonical name. Names differing only in letter case or trailing dot share
// a key.
func Key(q dns.Question) uint64 {
	kb := keyBufferPool.Get().(*keyBuffer)
	defer keyBufferPool.Put(kb)

	// Format: [qclass:2][qtype:2][qname:variable]
	buf := kb.buf[:0]
	buf = append(buf, byte(q.Qclass>>8), byte(q.Qclass))
	buf = append(buf, byte(q.Qtype>>8), byte(q.Qtype))

	name := q.Name
	for len(name) > 0 && name[len(name)-1] == '.' {
		name = name[:len(name)-1]
	}

	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		buf = append(buf, c)
	}

	return xxhash.Sum64(buf)
}

// KeyString hashes an arbitrary string, used for non-DNS keys such as
// client addresses.
func KeyString(s string) uint64 {
	return xxhash.Sum64String(s)
}
