package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

func TestMetrics_Recording(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ObserveIdentify(40*time.Millisecond, 1, 2)
	m.RecordFrame("annotated")
	m.RecordFrame("annotated")
	m.RecordGateDecision("already_marked")
	m.RecordRegistryReload(3, nil)
	m.RecordRegistryReload(0, errors.New("boom"))
	m.StreamStarted()
	m.StreamStarted()
	m.StreamEnded()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.FacesDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Identifications.WithLabelValues("known")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Identifications.WithLabelValues("unknown")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesTotal.WithLabelValues("annotated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateDecisions.WithLabelValues("already_marked")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RegistryIdentities), "failed reload keeps the gauge")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryReloads.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveStreams))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveIdentify(time.Second, 1, 1)
		m.RecordFrame("annotated")
		m.RecordGateDecision("marked")
		m.RecordRegistryReload(1, nil)
		m.StreamStarted()
		m.StreamEnded()
		m.SetMarkedToday(4)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.RecordFrame("placeholder")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `rollcall_stream_frames_total{outcome="placeholder"} 1`)
}

type fakeCounter struct {
	calls atomic.Int32
	days  chan domain.Day
	err   error
}

func (f *fakeCounter) CountByDay(_ context.Context, day domain.Day) (int, error) {
	f.calls.Add(1)
	select {
	case f.days <- day:
	default:
	}
	return 7, f.err
}

func TestAggregator_RefreshesMarkedToday(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	counter := &fakeCounter{days: make(chan domain.Day, 1)}
	agg := NewAggregator(counter, m, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour, time.UTC)
	agg.now = func() time.Time { return time.Date(2026, 5, 4, 23, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx)
		close(done)
	}()

	select {
	case day := <-counter.days:
		assert.Equal(t, domain.Day("2026-05-04"), day)
	case <-time.After(2 * time.Second):
		t.Fatal("aggregator did not run")
	}

	cancel()
	<-done
	assert.Equal(t, 7.0, testutil.ToFloat64(m.MarkedToday))
}
