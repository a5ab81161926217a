//go:build linux

package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srediag/vecshm/pkg/shm"
	"github.com/srediag/vecshm/pkg/vector"
)

func TestProduceGrowsSeededRecords(t *testing.T) {
	ctx := context.Background()
	name := fmt.Sprintf("vecshm_producer_%d_%d", os.Getpid(), rand.Int63())
	schema := vector.Schema{Count: 3, Layout: vector.LayoutSequenced}
	w, err := shm.Create(ctx, shm.CreateOptions{Name: name, Schema: schema, Replace: true})
	require.NoError(t, err)
	defer w.Close()

	// a consumer seeds through its own read-write mapping
	r, err := shm.Open(ctx, shm.OpenOptions{Name: name, Schema: schema, Mode: shm.ReadWrite})
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Write(ctx, []vector.Record{{X: 1}, {}, {X: 2, Y: 2, Z: 2}}))

	require.NoError(t, produce(ctx, w, time.Millisecond, 0.5, 2))

	got := make([]vector.Record, 3)
	require.NoError(t, r.Snapshot(ctx, got))
	require.Equal(t, []vector.Record{{X: 2.25}, {}, {X: 4.5, Y: 4.5, Z: 4.5}}, got)
	// each write bumps the sequence by two
	require.EqualValues(t, 6, r.Sequence())
}

func TestProduceStopsOnCancel(t *testing.T) {
	name := fmt.Sprintf("vecshm_producer_%d_%d", os.Getpid(), rand.Int63())
	w, err := shm.Create(context.Background(), shm.CreateOptions{Name: name, Schema: vector.Schema{Count: 1}, Replace: true})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, produce(ctx, w, time.Millisecond, 0.001, 0), context.DeadlineExceeded)
}

func TestProduceKeepsConcurrentSeed(t *testing.T) {
	name := fmt.Sprintf("vecshm_producer_%d_%d", os.Getpid(), rand.Int63())
	schema := vector.Schema{Count: 64}
	w, err := shm.Create(context.Background(), shm.CreateOptions{Name: name, Schema: schema, Replace: true})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- produce(ctx, w, 50*time.Microsecond, 0.001, 0) }()

	r, err := shm.Open(ctx, shm.OpenOptions{Name: name, Schema: schema, Mode: shm.ReadWrite})
	require.NoError(t, err)
	defer r.Close()

	seed := make([]vector.Record, schema.Count)
	for i := range seed {
		seed[i] = vector.Record{X: float32(i + 1), Y: 1, Z: 1}
	}
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.Write(ctx, seed))
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	got := make([]vector.Record, schema.Count)
	require.NoError(t, r.Snapshot(context.Background(), got))
	for i, rec := range got {
		require.GreaterOrEqual(t, rec.X, seed[i].X, "record %d", i)
		require.GreaterOrEqual(t, rec.Y, float32(1), "record %d", i)
	}
}
