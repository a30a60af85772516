// Package api serves the HTTP management endpoints: prometheus metrics,
// blocklist lookups and reloads, cache purges and runtime stats.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/semihalev/zlog/v2"

	"github.com/russdns/russdns/blocklist"
	"github.com/russdns/russdns/cache"
	"github.com/russdns/russdns/config"
	"github.com/russdns/russdns/metrics"
)

// API type
type API struct {
	addr      string
	mux       *http.ServeMux
	blocklist *blocklist.BlockList
	cache     *cache.LRU[[]byte]
	metrics   *metrics.Metrics
}

// New return new api
func New(cfg *config.Config, bl *blocklist.BlockList, c *cache.LRU[[]byte], m *metrics.Metrics) *API {
	a := &API{
		addr:      cfg.API,
		mux:       http.NewServeMux(),
		blocklist: bl,
		cache:     c,
		metrics:   m,
	}

	a.mux.Handle("GET /metrics", promhttp.Handler())

	if a.blocklist != nil {
		a.mux.HandleFunc("GET /api/v1/block/exists/{key}", wrap(a.existsBlock))
		a.mux.HandleFunc("POST /api/v1/blocklist/reload", wrap(a.reloadBlocklist))
	}

	if a.cache != nil {
		a.mux.HandleFunc("POST /api/v1/cache/purge", wrap(a.purge))
	}

	a.mux.HandleFunc("GET /api/v1/stats", wrap(a.stats))

	return a
}

// Handler returns the route multiplexer.
func (a *API) Handler() http.Handler { return a.mux }

func (a *API) existsBlock(ctx *Context) {
	ctx.JSON(http.StatusOK, Json{"exists": a.blocklist.Exists(ctx.Param("key"))})
}

func (a *API) reloadBlocklist(ctx *Context) {
	if err := a.blocklist.Reload(); err != nil {
		ctx.JSON(http.StatusInternalServerError, Json{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, Json{"success": true, "total": a.blocklist.Length()})
}

func (a *API) purge(ctx *Context) {
	a.cache.Purge()

	zlog.Info("Cache purged")

	ctx.JSON(http.StatusOK, Json{"success": true})
}

func (a *API) stats(ctx *Context) {
	out := Json{}

	if a.blocklist != nil {
		out["blocklist"] = a.blocklist.Length()
	}

	if a.cache != nil {
		out["cache"] = Json{"len": a.cache.Len(), "cap": a.cache.Cap()}
	}

	if a.metrics != nil {
		queries := Json{}
		for _, outcome := range []string{
			metrics.OutcomeBlocked,
			metrics.OutcomeCached,
			metrics.OutcomeForwarded,
			metrics.OutcomeServfail,
			metrics.OutcomeFormerr,
			metrics.OutcomePassthrough,
			metrics.OutcomeFailed,
		} {
			queries[outcome] = a.metrics.Count(outcome)
		}
		out["queries"] = queries
	}

	ctx.JSON(http.StatusOK, out)
}

// Run serves the API until ctx is done. It returns nil at once when no
// address is configured.
func (a *API) Run(ctx context.Context) error {
	if a.addr == "" {
		return nil
	}

	srv := &http.Server{
		Addr:              a.addr,
		Handler:           a.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		zlog.Info("API server stopping...", "addr", a.addr)

		apiCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(apiCtx); err != nil {
			zlog.Error("Shutdown API server failed", "error", err.Error())
		}
	})
	defer stop()

	zlog.Info("API server listening...", "addr", a.addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start API server: %w", err)
	}

	return nil
}
