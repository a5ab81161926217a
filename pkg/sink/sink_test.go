package sink

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/srediag/vecshm/api"
	"github.com/srediag/vecshm/pkg/vector"
)

var _ api.Sink = (*Mesh)(nil)
var _ api.Sink = (*Fanout)(nil)

type SinkTestSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *SinkTestSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *SinkTestSuite) TestMeshTriangle() {
	verts := []vector.Record{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 5, Y: 5, Z: 5}}
	m, err := NewMesh(verts, []int{0, 1, 2})
	s.Require().NoError(err)

	s.Equal(r3.Box{Min: r3.Vec{}, Max: r3.Vec{X: 5, Y: 5, Z: 5}}, m.Bounds())
	normals := m.Normals()
	for i := 0; i < 3; i++ {
		s.InDelta(1.0, normals[i].Z, 1e-12)
	}
	s.Equal(r3.Vec{}, normals[3])
	s.Zero(m.Updates())
	s.Equal(verts, m.InitialRecords())
}

func (s *SinkTestSuite) TestMeshDeliver() {
	verts, tris := Grid(3)
	s.Require().Len(verts, 9)
	s.Require().Len(tris, 24)
	m, err := NewMesh(verts, tris)
	s.Require().NoError(err)
	for _, n := range m.Normals() {
		s.InDelta(1.0, n.Z, 1e-12)
	}

	// flip the grid onto the XZ plane
	moved := make([]vector.Record, len(verts))
	for i, v := range verts {
		moved[i] = vector.Record{X: v.X, Y: 0, Z: v.Y}
	}
	s.Require().NoError(m.Deliver(s.ctx, moved))
	s.EqualValues(1, m.Updates())
	s.Equal(r3.Vec{X: 2, Y: 0, Z: 2}, m.Bounds().Max)
	for _, n := range m.Normals() {
		s.InDelta(-1.0, n.Y, 1e-12)
	}
	s.Equal(r3.Vec{X: 1, Y: 0, Z: 2}, m.Vertices()[7])
	// initial vertices are kept for seeding
	s.Equal(verts, m.InitialRecords())

	err = m.Deliver(s.ctx, moved[:4])
	s.ErrorIs(err, ErrVertexCount)
	s.EqualValues(1, m.Updates())
}

func (s *SinkTestSuite) TestMeshRejectsBadTriangles() {
	verts, _ := Grid(2)
	_, err := NewMesh(verts, []int{0, 1})
	s.ErrorIs(err, ErrTriangles)
	_, err = NewMesh(verts, []int{0, 1, 4})
	s.ErrorIs(err, ErrTriangles)
	_, err = NewMesh(verts, nil)
	s.NoError(err)
	v, t := Grid(1)
	s.Nil(v)
	s.Nil(t)
}

func (s *SinkTestSuite) TestFanout() {
	var calls atomic.Int32
	ok := api.SinkFunc(func(_ context.Context, records []vector.Record) error {
		calls.Add(1)
		s.Len(records, 2)
		return nil
	})
	boom := errors.New("boom")
	bad := api.SinkFunc(func(context.Context, []vector.Record) error {
		calls.Add(1)
		return boom
	})

	f, err := NewFanout(0, ok, ok, bad)
	s.Require().NoError(err)
	defer f.Close()

	records := []vector.Record{{X: 1}, {X: 2}}
	err = f.Deliver(s.ctx, records)
	s.ErrorIs(err, boom)
	s.EqualValues(3, calls.Load())

	f2, err := NewFanout(1, ok, ok)
	s.Require().NoError(err)
	defer f2.Close()
	s.NoError(f2.Deliver(s.ctx, records))
	s.EqualValues(5, calls.Load())
}

func (s *SinkTestSuite) TestFanoutIntoMesh() {
	verts, tris := Grid(4)
	m, err := NewMesh(verts, tris)
	s.Require().NoError(err)
	f, err := NewFanout(2, m, Log(zap.NewNop(), 1))
	s.Require().NoError(err)
	defer f.Close()

	s.Require().NoError(f.Deliver(s.ctx, verts))
	s.EqualValues(1, m.Updates())
}

func TestSinkTestSuite(t *testing.T) {
	suite.Run(t, new(SinkTestSuite))
}
