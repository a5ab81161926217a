package vector

import (
	"errors"
	"fmt"
	"strings"
)

// Layout selects how records are framed inside the region.
type Layout int

const (
	// LayoutRaw is a bare record array with no header. Readers may observe
	// torn records while the producer writes.
	LayoutRaw Layout = iota
	// LayoutSequenced prefixes the records with a Header whose sequence word
	// is odd while a write is in progress.
	LayoutSequenced
)

func (l Layout) String() string {
	switch l {
	case LayoutRaw:
		return "raw"
	case LayoutSequenced:
		return "sequenced"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// ParseLayout parses the names produced by Layout.String.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return LayoutRaw, nil
	case "sequenced":
		return LayoutSequenced, nil
	default:
		return LayoutRaw, fmt.Errorf("%w: %q", ErrUnknownLayout, s)
	}
}

// Header of a sequenced region:
//
//	offset 0   uint64 sequence (odd while the writer is mid-update)
//	offset 8   uint32 element count
//	offset 12  uint32 record size
const (
	HeaderSize        = 16
	SeqOffset         = 0
	CountOffset       = 8
	RecordSizeOffset  = 12
	MaxElementCount   = 1 << 27
	seqWriteInProcess = 1
)

var (
	ErrInvalidCount  = errors.New("element count must be positive")
	ErrTooLarge      = errors.New("element count exceeds limit")
	ErrUnknownLayout = errors.New("unknown layout")
	ErrHeaderInvalid = errors.New("region header does not match schema")
)

// Schema is the compile-time agreement between producer and consumer.
type Schema struct {
	Count  int
	Layout Layout
}

// DefaultSchema is the reference mesh schema in raw layout.
func DefaultSchema() Schema {
	return Schema{Count: DefaultElementCount, Layout: LayoutRaw}
}

// Validate checks that the schema describes a mappable region.
func (s Schema) Validate() error {
	if s.Count <= 0 {
		return ErrInvalidCount
	}
	if s.Count > MaxElementCount {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, s.Count, MaxElementCount)
	}
	if s.Layout != LayoutRaw && s.Layout != LayoutSequenced {
		return fmt.Errorf("%w: %d", ErrUnknownLayout, int(s.Layout))
	}
	return nil
}

// DataOffset is where record 0 starts.
func (s Schema) DataOffset() int {
	if s.Layout == LayoutSequenced {
		return HeaderSize
	}
	return 0
}

// DataSize is the byte length of the record array.
func (s Schema) DataSize() int {
	return s.Count * RecordSize
}

// Size is the byte length of the whole region.
func (s Schema) Size() int {
	return s.DataOffset() + s.DataSize()
}

// Data returns the record array slice of a mapped region.
func (s Schema) Data(mem []byte) []byte {
	off := s.DataOffset()
	return mem[off : off+s.DataSize()]
}

// WriteHeader stamps the header of a sequenced region with sequence 0.
func (s Schema) WriteHeader(mem []byte) {
	if s.Layout != LayoutSequenced {
		return
	}
	byteOrder.PutUint32(mem[CountOffset:], uint32(s.Count))
	byteOrder.PutUint32(mem[RecordSizeOffset:], RecordSize)
}

// CheckHeader verifies a sequenced region was created for this schema.
func (s Schema) CheckHeader(mem []byte) error {
	if s.Layout != LayoutSequenced {
		return nil
	}
	if len(mem) < HeaderSize {
		return ErrHeaderInvalid
	}
	count := byteOrder.Uint32(mem[CountOffset:])
	size := byteOrder.Uint32(mem[RecordSizeOffset:])
	if int(count) != s.Count || size != RecordSize {
		return fmt.Errorf("%w: count=%d recordSize=%d", ErrHeaderInvalid, count, size)
	}
	return nil
}

// SeqWriting reports whether a sequence value marks an in-progress write.
func SeqWriting(seq uint64) bool {
	return seq&seqWriteInProcess != 0
}
