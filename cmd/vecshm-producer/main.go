// Command vecshm-producer creates a vecshm region and keeps updating it.
//
// It replaces any stale region of the same name, zeroes it, and then every
// interval grows every non-zero record by amount. The records start at zero,
// so nothing moves until a consumer seeds the region. The region is unlinked
// on exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/srediag/vecshm/internal/logging"
	"github.com/srediag/vecshm/pkg/config"
	"github.com/srediag/vecshm/pkg/shm"
	"github.com/srediag/vecshm/pkg/vector"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	name := flag.String("name", cfg.Region.Name, "shared region name")
	count := flag.Int("count", cfg.Region.ElementCount, "number of records")
	layout := flag.String("layout", cfg.Region.Layout, "region layout: raw or sequenced")
	interval := flag.Duration("interval", 16*time.Millisecond, "update interval")
	amount := flag.Float64("amount", 0.001, "growth factor applied per update")
	iterations := flag.Int("iterations", 0, "stop after this many updates; 0 runs until signalled")
	keep := flag.Bool("keep", false, "leave the region in place on exit")
	flag.Parse()

	if err := logging.Init(logging.Merge(cfg.Log.Level, cfg.Log.Development)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logging.Sync()
	logger := logging.Named("producer")

	l, err := vector.ParseLayout(*layout)
	if err != nil {
		logger.Fatal("bad layout", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := shm.Create(ctx, shm.CreateOptions{
		Name:        *name,
		Schema:      vector.Schema{Count: *count, Layout: l},
		Replace:     true,
		KeepOnClose: *keep,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("create region", zap.String("region", *name), zap.Error(err))
	}
	logger.Info("region created",
		zap.String("region", w.Name()),
		zap.Int("records", w.Count()),
		zap.Int("record_size", vector.RecordSize),
		zap.String("layout", l.String()))

	err = produce(ctx, w, *interval, float32(*amount), *iterations)
	if cerr := w.Close(); cerr != nil {
		logger.Warn("close region", zap.Error(cerr))
	}
	if err != nil && ctx.Err() == nil {
		logger.Fatal("produce", zap.Error(err))
	}
}

// produce grows the region in place once per interval. It returns nil after
// iterations updates, or ctx.Err() when cancelled.
func produce(ctx context.Context, w *shm.Writer, interval time.Duration, amount float32, iterations int) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for n := 0; iterations <= 0 || n < iterations; n++ {
		if _, err := w.Grow(amount); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
