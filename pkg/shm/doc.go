// Package shm opens, maps and reads vecshm shared regions.
//
// A Region is the consumer's view of a named region created by a producer. A
// Writer is the producer side. Both agree on the byte layout through
// vector.Schema; nothing in the region itself describes a raw layout, so a
// mismatched schema is undetectable and yields garbage records.
//
// Region is instrumented with OpenTelemetry metrics and tracing (OTel Go SDK
// v1.30.0). Without a Meter or Tracer in OpenOptions the noop providers are
// used.
//
// Example usage:
//
//	r, err := shm.Open(ctx, shm.OpenOptions{
//	  Name:   vector.DefaultRegionName,
//	  Schema: vector.DefaultSchema(),
//	  Mode:   shm.ReadOnly,
//	})
//	if err != nil {
//	  // errors.Is(err, shm.ErrNotFound) until the producer has started
//	}
//	defer r.Close()
//	buf := make([]vector.Record, r.Count())
//	err = r.Snapshot(ctx, buf)
//
// Platform-specific helpers are in internal/shm.
package shm
