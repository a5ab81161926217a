// Package vector defines the binary record format exchanged through a vecshm
// region. Producers and consumers must both build against this package; it is
// the only place the layout is described.
//
// Record layout (12 bytes, little-endian, no padding):
//
//	offset 0  float32 x
//	offset 4  float32 y
//	offset 8  float32 z
//
// Records are stored contiguously. Index i starts at DataOffset + i*RecordSize.
package vector

import (
	"encoding/binary"
	"math"
)

const (
	// RecordSize is the encoded size of one Record.
	RecordSize = 12

	// DefaultElementCount is the record count of the reference mesh.
	DefaultElementCount = 393218

	// DefaultRegionName is the region name used by the reference producer.
	DefaultRegionName = "SharedMemory"

	offX = 0
	offY = 4
	offZ = 8
)

var byteOrder = binary.LittleEndian

// Record is one 3D sample.
type Record struct {
	X, Y, Z float32
}

// Scale returns r with every component multiplied by f.
func (r Record) Scale(f float32) Record {
	return Record{X: r.X * f, Y: r.Y * f, Z: r.Z * f}
}

// IsZero reports whether all components are zero.
func (r Record) IsZero() bool {
	return r.X == 0 && r.Y == 0 && r.Z == 0
}

// Grow moves every record whose components do not sum to zero away from
// the origin by amount times itself, in place. It returns how many records
// changed.
func Grow(records []Record, amount float32) int {
	n := 0
	for i, r := range records {
		if g, ok := GrowRecord(r, amount); ok {
			records[i] = g
			n++
		}
	}
	return n
}

// GrowRecord returns r grown by amount, or r and false when its components
// sum to zero.
func GrowRecord(r Record, amount float32) (Record, bool) {
	if r.X+r.Y+r.Z == 0 {
		return r, false
	}
	return Record{X: r.X + r.X*amount, Y: r.Y + r.Y*amount, Z: r.Z + r.Z*amount}, true
}

// Decode reads the record stored at the start of b.
func Decode(b []byte) Record {
	_ = b[RecordSize-1]
	return Record{
		X: math.Float32frombits(byteOrder.Uint32(b[offX:])),
		Y: math.Float32frombits(byteOrder.Uint32(b[offY:])),
		Z: math.Float32frombits(byteOrder.Uint32(b[offZ:])),
	}
}

// Encode writes r to the start of b.
func Encode(b []byte, r Record) {
	_ = b[RecordSize-1]
	byteOrder.PutUint32(b[offX:], math.Float32bits(r.X))
	byteOrder.PutUint32(b[offY:], math.Float32bits(r.Y))
	byteOrder.PutUint32(b[offZ:], math.Float32bits(r.Z))
}

// DecodeAll fills dst from consecutive records in data. It copies
// min(len(dst), len(data)/RecordSize) records and returns that count.
func DecodeAll(dst []Record, data []byte) int {
	n := len(data) / RecordSize
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = Decode(data[i*RecordSize:])
	}
	return n
}

// EncodeAll writes src to consecutive records in data and returns the number
// of records written.
func EncodeAll(data []byte, src []Record) int {
	n := len(data) / RecordSize
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		Encode(data[i*RecordSize:], src[i])
	}
	return n
}
