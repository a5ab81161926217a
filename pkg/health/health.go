// Package health exposes channel liveness and readiness over HTTP.
package health

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srediag/vecshm/api"
)

// ErrStale is returned by Freshness when no copy landed within the window.
var ErrStale = errors.New("no recent poll")

// Options controls the handler.
type Options struct {
	// Name labels the channel's checks.
	Name string
	// Registry, when set, receives one gauge per check and backs /metrics.
	Registry *prometheus.Registry
	// CheckTimeout bounds each check. Zero disables the bound.
	CheckTimeout time.Duration
}

// NewHandler returns a healthcheck handler serving /live and /ready for h.
func NewHandler(h api.Health, opts Options) healthcheck.Handler {
	name := opts.Name
	if name == "" {
		name = "channel"
	}
	var hc healthcheck.Handler
	if opts.Registry != nil {
		hc = healthcheck.NewMetricsHandler(opts.Registry, "vecshm")
	} else {
		hc = healthcheck.NewHandler()
	}
	live, ready := healthcheck.Check(h.Live), healthcheck.Check(h.Ready)
	if opts.CheckTimeout > 0 {
		live = healthcheck.Timeout(live, opts.CheckTimeout)
		ready = healthcheck.Timeout(ready, opts.CheckTimeout)
	}
	hc.AddLivenessCheck(name+"-live", live)
	hc.AddReadinessCheck(name+"-ready", ready)
	return hc
}

// Freshness fails when last reports a time older than maxAge, or the zero
// time.
func Freshness(last func() time.Time, maxAge time.Duration) healthcheck.Check {
	return func() error {
		t := last()
		if t.IsZero() {
			return ErrStale
		}
		if age := time.Since(t); age > maxAge {
			return fmt.Errorf("%w: last poll %s ago", ErrStale, age.Truncate(time.Millisecond))
		}
		return nil
	}
}

// Mux routes /live and /ready to hc and, with a registry, /metrics.
func Mux(hc healthcheck.Handler, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", hc.LiveEndpoint)
	mux.HandleFunc("/ready", hc.ReadyEndpoint)
	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	return mux
}
