package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nostr-relaypool/internal/pool"
)

var serverStartTime = time.Now()

// newMetricsRegistry returns a registry with the process and Go collectors
// that the pool registers its own collectors on.
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// healthResponse is the /health payload.
type healthResponse struct {
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Relays        []string `json:"relays"`
	Subscriptions int      `json:"subscriptions"`
	Unique        uint64   `json:"unique_events"`
	Duplicates    uint64   `json:"duplicate_events"`
	Dropped       uint64   `json:"dropped_events"`
}

// healthHandler reports "degraded" while no relay is connected.
func healthHandler(p *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := p.Stats()
		resp := healthResponse{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(serverStartTime).Seconds()),
			Relays:        p.ActiveRelays(),
			Subscriptions: stats.Subscriptions,
			Unique:        stats.Unique,
			Duplicates:    stats.Duplicates,
			Dropped:       stats.Dropped,
		}
		code := http.StatusOK
		if stats.ActiveRelays == 0 {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(resp)
	}
}

func newMetricsMux(reg *prometheus.Registry, p *pool.Pool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler(p))
	return mux
}

// serveMetrics starts the metrics listener in the background. The returned
// function stops it.
func serveMetrics(addr string, reg *prometheus.Registry, p *pool.Pool) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMetricsMux(reg, p),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
