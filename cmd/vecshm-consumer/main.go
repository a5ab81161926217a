// Command vecshm-consumer opens a vecshm region and mirrors it into a mesh
// at the configured cadence, serving /live, /ready and /metrics.
//
// Configuration comes from VECSHM_* environment variables; see pkg/config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/srediag/vecshm/adapter"
	"github.com/srediag/vecshm/internal/logging"
	"github.com/srediag/vecshm/pkg/audit"
	"github.com/srediag/vecshm/pkg/config"
	"github.com/srediag/vecshm/pkg/health"
	"github.com/srediag/vecshm/pkg/lifecycle"
	"github.com/srediag/vecshm/pkg/poller"
	"github.com/srediag/vecshm/pkg/shm"
	"github.com/srediag/vecshm/pkg/sink"
	"github.com/srediag/vecshm/pkg/vector"
)

func main() {
	dump := flag.Int("dump", 0, "print the first n records of the region and exit")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logging.Init(logging.Merge(cfg.Log.Level, cfg.Log.Development)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logging.Sync()

	if *dump > 0 {
		schema, err := cfg.Schema()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		if err := shm.DebugRegionDetail(context.Background(), os.Stdout, cfg.Region.Name, schema, *dump); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, lifecycle.ErrClosed) {
		logging.Named("consumer").Error("consumer stopped", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := logging.Named("consumer")
	opts, err := lifecycle.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	// With no mesh asset loaded, mirror into a grid of matching size.
	verts, tris := sink.Grid(gridSide(opts.Region.Schema.Count))
	verts = append(verts, make([]vector.Record, opts.Region.Schema.Count-len(verts))...)
	mesh, err := sink.NewMesh(verts, tris)
	if err != nil {
		return err
	}
	fanout, err := sink.NewFanout(2, mesh, sink.Log(logger, 60))
	if err != nil {
		return err
	}
	defer fanout.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	journal := audit.NewJournal(cfg.Audit.Capacity, logger.Named("audit"))
	defer journal.Close()

	opts.Sink = fanout
	opts.Metrics = poller.NewMetrics(reg)
	opts.Audit = journal
	opts.Logger = logger
	opts.Region.Logger = logger.Named("shm")
	opts.Region = adapter.WithOTel(opts.Region)
	opts.StaleAfter = 10 * cfg.Poll.Interval
	if cfg.Region.Seed {
		opts.Seed = mesh.InitialRecords()
	}

	m := lifecycle.New(opts)
	defer m.Close()

	closed, stopSignals := lifecycle.NotifyOnSignal()
	defer stopSignals()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case sig := <-closed:
			logger.Info("shutting down", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.HTTP.Enabled {
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           health.Mux(health.NewHandler(m, health.Options{Registry: reg, CheckTimeout: time.Second}), reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", zap.Error(err))
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if err := m.Start(ctx); err != nil {
		return err
	}
	logger.Info("channel mapped", zap.String("channel", m.ID()), zap.Int("records", opts.Region.Schema.Count))
	return m.Run(ctx, cfg.Poll.Frame)
}

// gridSide returns the largest n with n*n <= count.
func gridSide(count int) int {
	n := 1
	for (n+1)*(n+1) <= count {
		n++
	}
	return n
}
