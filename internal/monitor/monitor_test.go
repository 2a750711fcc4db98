package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smssim/internal/logger"
	"smssim/internal/stats"
)

// recordingReader records when each read happened and cancels the run
// after `stopAfter` reads.
type recordingReader struct {
	mu        sync.Mutex
	reads     []time.Time
	stopAfter int
	cancel    context.CancelFunc
	agg       stats.Aggregate
	err       error
}

func (r *recordingReader) Read(ctx context.Context) (stats.Aggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads = append(r.reads, time.Now())
	if len(r.reads) == r.stopAfter && r.cancel != nil {
		r.cancel()
	}
	if r.err != nil {
		return stats.Aggregate{}, r.err
	}
	return r.agg, nil
}

func TestMonitor_Cadence(t *testing.T) {
	const interval = 20 * time.Millisecond
	const reads = 4

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &recordingReader{stopAfter: reads, cancel: cancel}
	m := New(reader, interval, logger.NopLogger())

	start := time.Now()
	require.NoError(t, m.Run(ctx))

	reader.mu.Lock()
	defer reader.mu.Unlock()
	require.GreaterOrEqual(t, len(reader.reads), reads)
	for k, at := range reader.reads {
		// the (k+1)th read happens no earlier than start + k*interval
		assert.GreaterOrEqual(t, at.Sub(start), time.Duration(k)*interval, "read %d", k+1)
	}
}

func TestMonitor_PollReportsAggregate(t *testing.T) {
	reader := &recordingReader{agg: stats.Aggregate{Sent: 4, Failed: 2, TotalTime: 10}}
	m := New(reader, time.Second, logger.NopLogger())

	_, ok := m.Latest()
	assert.False(t, ok)

	snap := m.Poll(context.Background())
	assert.Equal(t, uint64(4), snap.Sent)
	assert.Equal(t, uint64(2), snap.Failed)
	assert.Equal(t, 2.5, snap.AvgTime)
	assert.Empty(t, snap.Error)

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, snap, latest)
}

func TestMonitor_ReadFailureIsZeroSnapshot(t *testing.T) {
	reader := &recordingReader{err: errors.New("redis: connection refused")}
	m := New(reader, time.Second, logger.NopLogger())

	snap := m.Poll(context.Background())
	assert.Equal(t, uint64(0), snap.Sent)
	assert.Equal(t, uint64(0), snap.Failed)
	assert.Equal(t, 0.0, snap.AvgTime)
	assert.Contains(t, snap.Error, "connection refused")
}

func TestMonitor_KeepsRunningAfterReadFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &recordingReader{stopAfter: 3, cancel: cancel, err: errors.New("timeout")}
	m := New(reader, 5*time.Millisecond, logger.NopLogger())

	require.NoError(t, m.Run(ctx))

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.GreaterOrEqual(t, len(reader.reads), 3)
}

func TestMonitor_NeverWrites(t *testing.T) {
	kv := stats.NewMemoryKV()
	store, err := stats.NewStore(kv, "sms_simulator_stats", stats.PolicyReadModifyWrite)
	require.NoError(t, err)

	m := New(store, time.Second, logger.NopLogger())
	snap := m.Poll(context.Background())
	assert.Equal(t, uint64(0), snap.Sent)

	_, found, err := kv.Get(context.Background(), "sms_simulator_stats")
	require.NoError(t, err)
	assert.False(t, found, "reading an absent aggregate must not create it")
}

func newRouter(m *Monitor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(m, logger.NopLogger()).RegisterRoutes(router)
	return router
}

func TestHandler_GetStats(t *testing.T) {
	reader := &recordingReader{agg: stats.Aggregate{Sent: 2, Failed: 1, TotalTime: 3}}
	m := New(reader, time.Second, logger.NopLogger())
	router := newRouter(m)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	m.Poll(context.Background())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, uint64(2), snap.Sent)
	assert.Equal(t, uint64(1), snap.Failed)
	assert.Equal(t, 1.5, snap.AvgTime)
}

func TestHandler_GetStatsFresh(t *testing.T) {
	reader := &recordingReader{agg: stats.Aggregate{Sent: 1, TotalTime: 0.5}}
	m := New(reader, time.Second, logger.NopLogger())
	router := newRouter(m)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats?fresh=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sent":1,"failed":0,"avg_time":0.5,"taken_at":"`+mustTime(t, w.Body.Bytes())+`"}`, w.Body.String())
}

func TestHandler_GetStatsFreshLeavesLatestAlone(t *testing.T) {
	reader := &recordingReader{agg: stats.Aggregate{Sent: 3, TotalTime: 3}}
	m := New(reader, time.Second, logger.NopLogger())
	router := newRouter(m)

	for i := 1; i <= 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats?fresh=true", nil))
		require.Equal(t, http.StatusOK, w.Code)

		reader.mu.Lock()
		assert.Len(t, reader.reads, i, "one store read per request")
		reader.mu.Unlock()
	}

	_, ok := m.Latest()
	assert.False(t, ok, "fresh reads must not publish a snapshot")

	polled := m.Poll(context.Background())
	reader.mu.Lock()
	reader.agg = stats.Aggregate{Sent: 9, TotalTime: 9}
	reader.mu.Unlock()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats?fresh=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sent":9`)

	latest, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, polled, latest)
}

func TestMonitor_ReadDoesNotStore(t *testing.T) {
	reader := &recordingReader{err: errors.New("redis: connection refused")}
	m := New(reader, time.Second, logger.NopLogger())

	snap, err := m.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, snap.Error, "connection refused")
	assert.Equal(t, uint64(0), snap.Sent)

	_, ok := m.Latest()
	assert.False(t, ok)
}

func mustTime(t *testing.T, body []byte) string {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &raw))
	s, ok := raw["taken_at"].(string)
	require.True(t, ok)
	return s
}
