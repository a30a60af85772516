// Package mock provides an in-process UDP DNS upstream for tests.
package mock

import (
	"net"
	"sync"

	"github.com/miekg/dns"
)

// Handler returns the datagrams to send back for one query, in order.
// Returning nothing leaves the query unanswered.
type Handler func(query []byte) [][]byte

// Upstream type
type Upstream struct {
	conn    net.PacketConn
	handler Handler

	mu       sync.Mutex
	received [][]byte
	peer     net.Addr

	done chan struct{}
}

// NewUpstream listens on a random loopback port and serves handler.
func NewUpstream(handler Handler) (*Upstream, error) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	u := &Upstream{
		conn:    conn,
		handler: handler,
		done:    make(chan struct{}),
	}

	go u.serve()

	return u, nil
}

func (u *Upstream) serve() {
	defer close(u.done)

	buf := make([]byte, dns.MaxMsgSize)
	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			return
		}

		query := make([]byte, n)
		copy(query, buf[:n])

		u.mu.Lock()
		u.received = append(u.received, query)
		u.peer = addr
		u.mu.Unlock()

		for _, resp := range u.handler(query) {
			_, _ = u.conn.WriteTo(resp, addr)
		}
	}
}

// Addr returns the host:port the upstream listens on.
func (u *Upstream) Addr() string { return u.conn.LocalAddr().String() }

// Queries returns how many datagrams were received.
func (u *Upstream) Queries() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	return len(u.received)
}

// Received returns copies of the received datagrams.
func (u *Upstream) Received() [][]byte {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make([][]byte, len(u.received))
	copy(out, u.received)

	return out
}

// Peer returns the source address of the last datagram received.
func (u *Upstream) Peer() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.peer
}

// Close stops the upstream.
func (u *Upstream) Close() error {
	err := u.conn.Close()
	<-u.done
	return err
}

// Silent never answers.
func Silent() Handler {
	return func([]byte) [][]byte { return nil }
}

// Echo answers with the query bytes unchanged.
func Echo() Handler {
	return func(query []byte) [][]byte { return [][]byte{query} }
}

// Answer replies to A queries with ip and ttl and to everything else with an
// empty success response. Unparsable queries are left unanswered.
func Answer(ip string, ttl uint32) Handler {
	return func(query []byte) [][]byte {
		req := new(dns.Msg)
		if err := req.Unpack(query); err != nil {
			return nil
		}

		resp := new(dns.Msg)
		resp.SetReply(req)
		resp.RecursionAvailable = true

		if len(req.Question) > 0 && req.Question[0].Qtype == dns.TypeA {
			resp.Answer = append(resp.Answer, &dns.A{
				Hdr: dns.RR_Header{
					Name:   req.Question[0].Name,
					Rrtype: dns.TypeA,
					Class:  dns.ClassINET,
					Ttl:    ttl,
				},
				A: net.ParseIP(ip).To4(),
			})
		}

		b, err := resp.Pack()
		if err != nil {
			return nil
		}

		return [][]byte{b}
	}
}

// Spoofed prefixes every reply of next with a copy carrying a different
// transaction id.
func Spoofed(next Handler) Handler {
	return func(query []byte) [][]byte {
		var out [][]byte
		for _, resp := range next(query) {
			fake := make([]byte, len(resp))
			copy(fake, resp)
			if len(fake) >= 2 {
				fake[0] ^= 0xff
			}
			out = append(out, fake, resp)
		}
		return out
	}
}
