// Package forwarder relays raw DNS queries to the single configured
// upstream server over UDP.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/semihalev/zlog/v2"

	"github.com/russdns/russdns/codec"
	"github.com/russdns/russdns/config"
)

var (
	// ErrTimeout is returned when no acceptable reply arrives in time.
	ErrTimeout = errors.New("upstream timeout")

	// ErrTransport wraps socket level failures of the exchange.
	ErrTransport = errors.New("upstream transport error")
)

// Forwarder type
type Forwarder struct {
	addr    string
	timeout time.Duration
	client  *dns.Client
}

// New return forwarder
func New(cfg *config.Config) *Forwarder {
	timeout := cfg.QueryTimeout()

	return &Forwarder{
		addr:    cfg.Upstream,
		timeout: timeout,
		client: &dns.Client{
			Net:     "udp",
			Timeout: timeout,
		},
	}
}

// Addr returns the upstream address.
func (f *Forwarder) Addr() string { return f.addr }

// Forward sends query to the upstream unchanged and returns the first reply
// carrying the same transaction id. The socket is connected to the
// upstream, so datagrams from any other source never reach it; replies with
// another id are discarded and waiting continues until the deadline.
func (f *Forwarder) Forward(ctx context.Context, query []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	conn, err := f.client.DialContext(ctx, f.addr)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	// unblock a pending read on shutdown
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(query); err != nil {
		return nil, classify(ctx, err)
	}

	id, hasID := codec.ID(query)
	buf := make([]byte, dns.MaxMsgSize)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return nil, classify(ctx, err)
		}

		if hasID {
			if rid, ok := codec.ID(buf[:n]); !ok || rid != id {
				zlog.Debug("Discarded upstream reply with mismatched id", "upstream", f.addr, "want", id, "size", n)
				continue
			}
		}

		resp := make([]byte, n)
		copy(resp, buf[:n])

		return resp, nil
	}
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrTransport, err)
}
