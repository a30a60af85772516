// Package ratelimit throttles queries per client address.
package ratelimit

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/russdns/russdns/cache"
	"github.com/russdns/russdns/config"
)

// RateLimit type
type RateLimit struct {
	mu    sync.Mutex
	cache *cache.LRU[*rate.Limiter]
	rate  int
}

// New return ratelimit
func New(cfg *config.Config) *RateLimit {
	// cacheSize is a positive constant
	c, _ := cache.New[*rate.Limiter](cacheSize)

	return &RateLimit{
		cache: c,
		rate:  cfg.ClientRateLimit,
	}
}

// Allow reports whether ip may send one more query now. A zero rate
// disables limiting; loopback clients are never limited.
func (r *RateLimit) Allow(ip net.IP) bool {
	if r == nil || r.rate <= 0 {
		return true
	}

	if ip == nil || ip.IsLoopback() {
		return true
	}

	return r.getLimiter(ip).Allow()
}

// Enabled reports whether a client rate is configured.
func (r *RateLimit) Enabled() bool {
	return r != nil && r.rate > 0
}

func (r *RateLimit) getLimiter(remoteip net.IP) *rate.Limiter {
	key := cache.KeyString(remoteip.String())

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.cache.Get(key); ok {
		return l
	}

	limit := rate.Every(time.Minute / time.Duration(r.rate))
	l := rate.NewLimiter(limit, r.rate)

	r.cache.Add(key, l, 0)

	return l
}

const cacheSize = 256 * 100
