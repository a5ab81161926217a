package shm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	internalshm "github.com/srediag/vecshm/internal/shm"
	"github.com/srediag/vecshm/pkg/vector"
)

const tornReadPause = 50 * time.Microsecond

// view implements the record codec over a mapping for one schema.
type view struct {
	schema  vector.Schema
	retries int
}

// read copies every record of mem into dst. Raw reads are unsynchronized.
// Sequenced reads retry while the sequence word shows a concurrent write and
// fail with ErrTornRead after v.retries extra attempts; dst then holds an
// unspecified mix of records.
func (v view) read(ctx context.Context, mem []byte, dst []vector.Record) (attempts int, err error) {
	if len(dst) != v.schema.Count {
		return 0, ErrBufferSize
	}
	data := v.schema.Data(mem)
	if v.schema.Layout == vector.LayoutRaw {
		vector.DecodeAll(dst, data)
		return 1, nil
	}

	seq := internalshm.WordAt(mem, vector.SeqOffset)
	op := func() error {
		attempts++
		before := internalshm.AtomicLoadUint64(seq)
		if vector.SeqWriting(before) {
			return ErrTornRead
		}
		vector.DecodeAll(dst, data)
		if internalshm.AtomicLoadUint64(seq) != before {
			return ErrTornRead
		}
		return nil
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(tornReadPause), uint64(v.retries))
	err = backoff.Retry(op, backoff.WithContext(b, ctx))
	return attempts, err
}

// write stores src into mem. In the sequenced layout the sequence word is odd
// for the duration of the store.
func (v view) write(mem []byte, src []vector.Record) error {
	if len(src) != v.schema.Count {
		return ErrBufferSize
	}
	data := v.schema.Data(mem)
	if v.schema.Layout == vector.LayoutRaw {
		vector.EncodeAll(data, src)
		return nil
	}
	addr := internalshm.WordAt(mem, vector.SeqOffset)
	seq := internalshm.AtomicLoadUint64(addr) &^ 1
	internalshm.AtomicStoreUint64(addr, seq+1)
	vector.EncodeAll(data, src)
	internalshm.AtomicStoreUint64(addr, seq+2)
	return nil
}

// grow applies vector.GrowRecord to every record in place and stores only
// the records that changed. Zero-sum records are never written. In the
// sequenced layout the sequence word is odd for the duration.
func (v view) grow(mem []byte, amount float32) int {
	data := v.schema.Data(mem)
	if v.schema.Layout == vector.LayoutSequenced {
		addr := internalshm.WordAt(mem, vector.SeqOffset)
		seq := internalshm.AtomicLoadUint64(addr) &^ 1
		internalshm.AtomicStoreUint64(addr, seq+1)
		defer internalshm.AtomicStoreUint64(addr, seq+2)
	}
	n := 0
	for off := 0; off+vector.RecordSize <= len(data); off += vector.RecordSize {
		if g, ok := vector.GrowRecord(vector.Decode(data[off:]), amount); ok {
			vector.Encode(data[off:], g)
			n++
		}
	}
	return n
}

// sequence returns the current sequence word, or 0 for raw layouts.
func (v view) sequence(mem []byte) uint64 {
	if v.schema.Layout != vector.LayoutSequenced {
		return 0
	}
	return internalshm.AtomicLoadUint64(internalshm.WordAt(mem, vector.SeqOffset))
}
