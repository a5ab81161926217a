package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
)

type stubHealth struct {
	live, ready error
}

func (s *stubHealth) Live() error  { return s.live }
func (s *stubHealth) Ready() error { return s.ready }

type HealthTestSuite struct {
	suite.Suite
}

func (s *HealthTestSuite) get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (s *HealthTestSuite) TestLiveAndReady() {
	st := &stubHealth{ready: errors.New("opening")}
	hc := NewHandler(st, Options{CheckTimeout: time.Second})

	s.Equal(http.StatusOK, s.get(hc, "/live").Code)
	s.Equal(http.StatusServiceUnavailable, s.get(hc, "/ready").Code)

	st.ready = nil
	s.Equal(http.StatusOK, s.get(hc, "/ready").Code)

	st.live = errors.New("closed")
	s.Equal(http.StatusServiceUnavailable, s.get(hc, "/live").Code)
	s.Equal(http.StatusServiceUnavailable, s.get(hc, "/ready").Code)
}

func (s *HealthTestSuite) TestMuxWithMetrics() {
	reg := prometheus.NewRegistry()
	st := &stubHealth{}
	mux := Mux(NewHandler(st, Options{Name: "region", Registry: reg}), reg)

	s.Equal(http.StatusOK, s.get(mux, "/live").Code)
	s.Equal(http.StatusOK, s.get(mux, "/ready?full=1").Code)
	rec := s.get(mux, "/metrics")
	s.Equal(http.StatusOK, rec.Code)
	s.True(strings.Contains(rec.Body.String(), "vecshm_healthcheck_status"), rec.Body.String())

	s.Equal(http.StatusNotFound, s.get(Mux(NewHandler(st, Options{}), nil), "/metrics").Code)
}

func (s *HealthTestSuite) TestFreshness() {
	var last time.Time
	check := Freshness(func() time.Time { return last }, 100*time.Millisecond)
	s.ErrorIs(check(), ErrStale)
	last = time.Now()
	s.NoError(check())
	last = time.Now().Add(-time.Second)
	s.ErrorIs(check(), ErrStale)
}

func TestHealthTestSuite(t *testing.T) {
	suite.Run(t, new(HealthTestSuite))
}
