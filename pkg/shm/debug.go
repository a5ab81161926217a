package shm

import (
	"context"
	"io"
	"strconv"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/vecshm/pkg/vector"
)

// DebugRegionDetail prints the first limit records of the named region to w.
// The region is opened read-only and released before returning.
func DebugRegionDetail(ctx context.Context, w io.Writer, name string, schema vector.Schema, limit int) error {
	r, err := Open(ctx, OpenOptions{Name: name, Schema: schema, Mode: ReadOnly})
	if err != nil {
		return err
	}
	defer r.Close()

	records := make([]vector.Record, r.Count())
	if err := r.Snapshot(ctx, records); err != nil {
		return err
	}
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.WriteString("region:")
	_, _ = buf.WriteString(r.Name())
	_, _ = buf.WriteString(" layout:")
	_, _ = buf.WriteString(schema.Layout.String())
	_, _ = buf.WriteString(" records:")
	buf.B = strconv.AppendInt(buf.B, int64(len(records)), 10)
	_, _ = buf.WriteString(" seq:")
	buf.B = strconv.AppendUint(buf.B, r.Sequence(), 10)
	_ = buf.WriteByte('\n')
	for i := 0; i < limit; i++ {
		rec := records[i]
		buf.B = strconv.AppendInt(buf.B, int64(i), 10)
		_, _ = buf.WriteString(": (")
		buf.B = strconv.AppendFloat(buf.B, float64(rec.X), 'g', -1, 32)
		_, _ = buf.WriteString(", ")
		buf.B = strconv.AppendFloat(buf.B, float64(rec.Y), 'g', -1, 32)
		_, _ = buf.WriteString(", ")
		buf.B = strconv.AppendFloat(buf.B, float64(rec.Z), 'g', -1, 32)
		_, _ = buf.WriteString(")\n")
	}
	_, err = buf.WriteTo(w)
	return err
}
