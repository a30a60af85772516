// Package codec turns wire-format DNS queries into messages and builds the
// responses the resolver synthesizes locally.
package codec

import (
	"errors"
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// SinkholeTTL is the TTL of synthesized sinkhole records, in seconds.
const SinkholeTTL = 60

// MaxUDPSize is the largest message accepted or produced without EDNS0.
const MaxUDPSize = dns.MinMsgSize

const headerSize = 12

var (
	// ErrDecode wraps any failure to parse an inbound message.
	ErrDecode = errors.New("malformed dns message")

	// ErrNoQuestion is returned with a well-formed message that carries no question.
	ErrNoQuestion = errors.New("dns message has no question")
)

// Decode parses b. A message with an empty question section is returned
// together with ErrNoQuestion so the caller can still answer it.
//
// Only the header and first question are needed to act on a query, so when
// a later section is malformed Decode retries on the header and first
// question alone and returns that message.
func Decode(b []byte) (*dns.Msg, error) {
	m := new(dns.Msg)
	if err := m.Unpack(b); err != nil {
		m = new(dns.Msg)
		if m.Unpack(firstQuestion(b)) != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	if len(m.Question) == 0 {
		return m, ErrNoQuestion
	}

	return m, nil
}

// firstQuestion returns a copy of b whose header announces at most one
// question and no records. Trailing bytes are left for Unpack to ignore.
func firstQuestion(b []byte) []byte {
	if len(b) < headerSize {
		return b
	}

	out := make([]byte, len(b))
	copy(out, b)

	if out[4] != 0 || out[5] > 1 {
		out[4], out[5] = 0, 1
	}
	clear(out[6:headerSize])

	return out
}

// Encode packs m into wire format.
func Encode(m *dns.Msg) ([]byte, error) {
	return m.Pack()
}

// reply starts a response echoing the request id, opcode, flags and first question.
func reply(req *dns.Msg, rcode int) *dns.Msg {
	m := new(dns.Msg)
	m.SetRcode(req, rcode)
	m.RecursionAvailable = true

	return m
}

// Sinkhole answers req with ip. Only A questions receive a record; every
// other type gets a successful response with an empty answer section.
func Sinkhole(req *dns.Msg, ip net.IP) *dns.Msg {
	m := reply(req, dns.RcodeSuccess)

	if len(req.Question) == 0 {
		return m
	}

	q := req.Question[0]
	if q.Qtype == dns.TypeA && q.Qclass == dns.ClassINET {
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    SinkholeTTL,
			},
			A: ip.To4(),
		})
	}

	return m
}

// NXDomain answers req with a name error and no records.
func NXDomain(req *dns.Msg) *dns.Msg {
	return reply(req, dns.RcodeNameError)
}

// Rcode answers req with rcode and no records.
func Rcode(req *dns.Msg, rcode int) *dns.Msg {
	return reply(req, rcode)
}

// ID returns the transaction id of a wire message, and false when b is too
// short to carry one.
func ID(b []byte) (uint16, bool) {
	if len(b) < 2 {
		return 0, false
	}
	return uint16(b[0])<<8 | uint16(b[1]), true
}

// WithID returns a copy of b carrying transaction id.
func WithID(b []byte, id uint16) []byte {
	out := make([]byte, len(b))
	copy(out, b)

	if len(out) >= 2 {
		out[0], out[1] = byte(id>>8), byte(id)
	}

	return out
}
