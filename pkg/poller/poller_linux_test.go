//go:build linux

package poller

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srediag/vecshm/pkg/shm"
	"github.com/srediag/vecshm/pkg/vector"
)

func TestPollerOverSharedRegion(t *testing.T) {
	if _, err := os.Stat("/dev/shm"); err != nil {
		t.Skipf("/dev/shm unavailable: %v", err)
	}
	ctx := context.Background()
	name := fmt.Sprintf("vecshm_poller_%d_%d", os.Getpid(), rand.Int63())

	for _, layout := range []vector.Layout{vector.LayoutRaw, vector.LayoutSequenced} {
		t.Run(layout.String(), func(t *testing.T) {
			schema := vector.Schema{Count: 4, Layout: layout}
			w, err := shm.Create(ctx, shm.CreateOptions{Name: name, Schema: schema, Replace: true})
			require.NoError(t, err)
			defer w.Close()

			want := []vector.Record{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}, {X: 7, Y: 8, Z: 9}, {X: 10, Y: 11, Z: 12}}
			require.NoError(t, w.Write(want))

			r, err := shm.Open(ctx, shm.OpenOptions{Name: name, Schema: schema})
			require.NoError(t, err)
			defer r.Close()

			sink := &recordingSink{}
			p := New(r, sink)
			polled, err := p.Tick(ctx, 2*DefaultInterval)
			require.NoError(t, err)
			require.True(t, polled)
			require.Equal(t, want, p.Buffer())
			require.Equal(t, want, sink.got[0])

			require.NoError(t, r.Close())
			_, err = p.Tick(ctx, 2*DefaultInterval)
			require.ErrorIs(t, err, shm.ErrAlreadyClosed)
			require.Equal(t, want, p.Buffer())
		})
	}
}
