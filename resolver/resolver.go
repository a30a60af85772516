// Package resolver decides how each inbound query is answered: blocked names
// get a synthesized response, everything else is served from the response
// cache or forwarded upstream.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/semihalev/zlog/v2"

	"github.com/russdns/russdns/blocklist"
	"github.com/russdns/russdns/cache"
	"github.com/russdns/russdns/codec"
	"github.com/russdns/russdns/config"
	"github.com/russdns/russdns/dnsutil"
	"github.com/russdns/russdns/metrics"
)

// Forwarder exchanges a raw query with the upstream server.
type Forwarder interface {
	Forward(ctx context.Context, query []byte) ([]byte, error)
}

// Resolver type
type Resolver struct {
	blocklist *blocklist.BlockList
	cache     *cache.LRU[[]byte]
	forwarder Forwarder
	metrics   *metrics.Metrics

	action   config.BlockAction
	sinkhole net.IP
	expire   time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMetrics records query outcomes and upstream latency in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New returns a resolver. The sinkhole address is validated regardless of the
// configured block action.
func New(cfg *config.Config, bl *blocklist.BlockList, c *cache.LRU[[]byte], fwd Forwarder, opts ...Option) (*Resolver, error) {
	sinkhole, err := cfg.SinkholeAddr()
	if err != nil {
		return nil, err
	}

	if bl == nil || c == nil || fwd == nil {
		return nil, errors.New("resolver requires a blocklist, a cache and a forwarder")
	}

	r := &Resolver{
		blocklist: bl,
		cache:     c,
		forwarder: fwd,
		action:    cfg.BlockAction,
		sinkhole:  sinkhole,
		expire:    time.Duration(cfg.Expire) * time.Second,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Resolve answers one raw query. A nil error always comes with the response
// bytes to send back. An error is returned only when a query that could not
// be decoded also failed to pass through to the upstream; such a query gets
// no reply.
func (r *Resolver) Resolve(ctx context.Context, raw []byte) ([]byte, error) {
	req, err := codec.Decode(raw)
	switch {
	case errors.Is(err, codec.ErrNoQuestion):
		r.metrics.Query(metrics.OutcomeFormerr)
		return codec.Encode(codec.Rcode(req, dns.RcodeFormatError))
	case err != nil:
		return r.passthrough(ctx, raw)
	}

	q := req.Question[0]
	r.metrics.QueryType(dns.TypeToString[q.Qtype])

	zlog.Debug("Resolving query", "query", dnsutil.FormatQuestion(q), "id", req.Id)

	if r.blocklist.Exists(q.Name) {
		r.metrics.Query(metrics.OutcomeBlocked)
		zlog.Debug("Blocked query", "query", dnsutil.FormatQuestion(q), "action", r.action.String())
		return codec.Encode(r.blocked(req))
	}

	key := cache.Key(q)

	if b, ok := r.cache.Get(key); ok {
		r.metrics.Query(metrics.OutcomeCached)
		return codec.WithID(b, req.Id), nil
	}

	resp, err := r.exchange(ctx, raw)
	if err != nil {
		r.metrics.Query(metrics.OutcomeServfail)
		zlog.Debug("Upstream exchange failed", "query", dnsutil.FormatQuestion(q), "error", err.Error())
		return codec.Encode(codec.Rcode(req, dns.RcodeServerFailure))
	}

	r.metrics.Query(metrics.OutcomeForwarded)
	r.store(key, q, resp)

	return resp, nil
}

func (r *Resolver) blocked(req *dns.Msg) *dns.Msg {
	if r.action == config.Nxdomain {
		return codec.NXDomain(req)
	}
	return codec.Sinkhole(req, r.sinkhole)
}

// passthrough relays bytes that do not decode as a query, unmodified in both
// directions.
func (r *Resolver) passthrough(ctx context.Context, raw []byte) ([]byte, error) {
	resp, err := r.exchange(ctx, raw)
	if err != nil {
		r.metrics.Query(metrics.OutcomeFailed)
		return nil, fmt.Errorf("passthrough: %w", err)
	}

	r.metrics.Query(metrics.OutcomePassthrough)

	return resp, nil
}

func (r *Resolver) exchange(ctx context.Context, raw []byte) ([]byte, error) {
	start := time.Now()
	resp, err := r.forwarder.Forward(ctx, raw)
	r.metrics.Upstream(time.Since(start))

	return resp, err
}

func (r *Resolver) store(key uint64, q dns.Question, resp []byte) {
	ttl, ok := r.cacheTTL(q, resp)
	if !ok {
		return
	}

	b := make([]byte, len(resp))
	copy(b, resp)

	r.cache.Add(key, b, ttl)
}

// cacheTTL reports how long resp may be served from the cache. Only
// untruncated NOERROR and NXDOMAIN replies to the same question qualify.
func (r *Resolver) cacheTTL(q dns.Question, resp []byte) (time.Duration, bool) {
	msg := new(dns.Msg)
	if err := msg.Unpack(resp); err != nil {
		return 0, false
	}

	if msg.Truncated {
		return 0, false
	}

	if msg.Rcode != dns.RcodeSuccess && msg.Rcode != dns.RcodeNameError {
		return 0, false
	}

	if len(msg.Question) == 0 || !dnsutil.SameQuestion(msg.Question[0], q) {
		return 0, false
	}

	ttl := dnsutil.MinimalTTL(msg, r.expire)
	if ttl <= 0 {
		return 0, false
	}

	return ttl, true
}
