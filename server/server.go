// Package server reads DNS queries from a UDP socket and answers each one
// concurrently.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/semihalev/zlog/v2"
	"golang.org/x/sync/semaphore"

	"github.com/russdns/russdns/accesslist"
	"github.com/russdns/russdns/accesslog"
	"github.com/russdns/russdns/codec"
	"github.com/russdns/russdns/config"
	"github.com/russdns/russdns/metrics"
	"github.com/russdns/russdns/ratelimit"
)

// Handler answers one raw query. A non-nil error means no reply is sent.
type Handler interface {
	Resolve(ctx context.Context, raw []byte) ([]byte, error)
}

const (
	minReadDelay = 5 * time.Millisecond
	maxReadDelay = time.Second
)

// Server type
type Server struct {
	addr    string
	handler Handler

	accesslist *accesslist.AccessList
	ratelimit  *ratelimit.RateLimit
	accesslog  *accesslog.AccessLog
	metrics    *metrics.Metrics

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics counts dropped datagrams in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New return new server
func New(cfg *config.Config, handler Handler, opts ...Option) *Server {
	addr := cfg.Bind
	if addr == "" {
		addr = ":53"
	}

	inflight := cfg.MaxInflight
	if inflight <= 0 {
		inflight = config.DefaultMaxInflight
	}

	s := &Server{
		addr:       addr,
		handler:    handler,
		accesslist: accesslist.New(cfg),
		ratelimit:  ratelimit.New(cfg),
		accesslog:  accesslog.New(cfg),
		sem:        semaphore.NewWeighted(int64(inflight)),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.ratelimit.Enabled() {
		zlog.Info("Client rate limit enabled", "queries_per_minute", cfg.ClientRateLimit)
	}

	return s
}

// ListenAndServe binds the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	zlog.Info("DNS server listening...", "net", "udp", "addr", conn.LocalAddr().String())

	return s.Serve(ctx, conn)
}

// Serve answers datagrams read from conn until ctx is done, then waits for
// in-flight queries and returns nil. conn is closed on return.
//
// The reader blocks while the in-flight limit is reached, leaving further
// datagrams queued in the socket buffer.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	defer func() {
		stop()
		_ = conn.Close()
		s.wg.Wait()
		_ = s.accesslog.Close()
	}()

	buf := make([]byte, codec.MaxUDPSize)

	var tempDelay time.Duration // how long to sleep on read failure

	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if tempDelay == 0 {
				tempDelay = minReadDelay
			} else {
				tempDelay *= 2
			}
			if tempDelay > maxReadDelay {
				tempDelay = maxReadDelay
			}

			zlog.Warn("DNS read failed", "error", err.Error(), "retry", tempDelay.String())

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(tempDelay):
			}
			continue
		}

		tempDelay = 0

		packet := make([]byte, n)
		copy(packet, buf[:n])

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		s.wg.Add(1)
		go s.serve(ctx, conn, addr, packet)
	}
}

func (s *Server) serve(ctx context.Context, conn net.PacketConn, addr net.Addr, packet []byte) {
	defer s.wg.Done()
	defer s.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			s.metrics.Dropped(metrics.DropError)

			zlog.Error("Recovered in serve", "recover", r, "client", addr.String())

			_, _ = fmt.Fprintf(os.Stderr, "panic: %v\n\n", r)
			debug.PrintStack()
		}
	}()

	ip := clientIP(addr)

	if !s.accesslist.Allowed(ip) {
		s.metrics.Dropped(metrics.DropAccessList)
		return
	}

	if !s.ratelimit.Allow(ip) {
		s.metrics.Dropped(metrics.DropRateLimit)
		return
	}

	zlog.Debug("Query received", "client", addr.String(), "size", len(packet))

	resp, err := s.handler.Resolve(ctx, packet)
	if err != nil {
		s.metrics.Dropped(metrics.DropError)
		zlog.Warn("Query dropped", "client", addr.String(), "error", err.Error())
		return
	}

	if _, err := conn.WriteTo(resp, addr); err != nil {
		zlog.Warn("DNS write failed", "client", addr.String(), "error", err.Error())
		return
	}

	s.accesslog.Log(ip, resp)
}

func clientIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case nil:
		return nil
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}

	return net.ParseIP(host)
}
