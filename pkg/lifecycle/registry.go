package lifecycle

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"

	"github.com/srediag/vecshm/internal/logging"
)

// registry holds every channel between Start and Closed.
var (
	registry = cmap.New[*channel]()
	nextID   atomic.Uint64
)

// Registered returns the ids of the channels that are open or opening.
func Registered() []string {
	return registry.Keys()
}

// CloseAll closes every registered channel and returns how many it closed.
// It is the process-exit path.
func CloseAll() int {
	n := 0
	for _, c := range registry.Items() {
		c.close(reasonProcessExit)
		n++
	}
	return n
}

// NotifyOnSignal runs CloseAll when one of sigs arrives, by default SIGINT
// or SIGTERM. The returned channel receives the signal after CloseAll
// finished. stop unsubscribes.
func NotifyOnSignal(sigs ...os.Signal) (closed <-chan os.Signal, stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	in := make(chan os.Signal, 1)
	out := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(in, sigs...)

	go func() {
		select {
		case sig := <-in:
			n := CloseAll()
			logging.Named("lifecycle").Info("closed channels on signal", zap.Stringer("signal", sig), zap.Int("channels", n))
			out <- sig
		case <-done:
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			signal.Stop(in)
			close(done)
		})
	}
}
