package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"smssim/internal/logger"
	"smssim/internal/stats"
	"smssim/pkg/metrics"
)

// Snapshot is one report of the shared stats. A failed read yields a zero
// snapshot with Error set.
type Snapshot struct {
	Sent    uint64    `json:"sent"`
	Failed  uint64    `json:"failed"`
	AvgTime float64   `json:"avg_time"`
	TakenAt time.Time `json:"taken_at"`
	Error   string    `json:"error,omitempty"`
}

// Monitor periodically reads the aggregate and reports it. It never
// writes to the store.
type Monitor struct {
	reader   stats.Reader
	interval time.Duration
	logger   logger.Logger
	now      func() time.Time

	latest atomic.Pointer[Snapshot]
}

func New(reader stats.Reader, interval time.Duration, log logger.Logger) *Monitor {
	return &Monitor{
		reader:   reader,
		interval: interval,
		logger:   log,
		now:      time.Now,
	}
}

// Run reports immediately and then once per interval until ctx is done.
// Read failures are reported and never stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Infow("Monitor started", "update_interval", m.interval.String())

	m.Poll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Infow("Monitor stopped")
			return nil
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Read takes a snapshot of the store without reporting or storing it.
func (m *Monitor) Read(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{TakenAt: m.now()}

	agg, err := m.reader.Read(ctx)
	if err != nil {
		snap.Error = err.Error()
		return snap, err
	}

	snap.Sent = agg.Sent
	snap.Failed = agg.Failed
	snap.AvgTime = agg.AvgTime()
	return snap, nil
}

// Poll performs one read and publishes the result.
func (m *Monitor) Poll(ctx context.Context) Snapshot {
	snap, err := m.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Snapshot{TakenAt: snap.TakenAt}
		}
		metrics.MonitorReadErrorsTotal.Inc()
		m.logger.Errorw("Failed to read stats", "error", err)
	}

	metrics.SetMonitorSnapshot(snap.Sent, snap.Failed, snap.AvgTime)
	m.logger.Infof("Messages sent: %d, Messages failed: %d, Avg. time per message: %.2f sec",
		snap.Sent, snap.Failed, snap.AvgTime)

	m.latest.Store(&snap)
	return snap
}

// Latest returns the most recent snapshot, if any poll has completed.
func (m *Monitor) Latest() (Snapshot, bool) {
	snap := m.latest.Load()
	if snap == nil {
		return Snapshot{}, false
	}
	return *snap, true
}
