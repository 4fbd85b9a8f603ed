package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds process-wide counters reported on /health.
type Metrics struct {
	start time.Time

	version string
	commit  string

	connsActive  atomic.Int64
	connsTotal   atomic.Int64
	framesIn     atomic.Int64
	framesBad    atomic.Int64
	snapshotsOut atomic.Int64
	fetches      atomic.Int64
	fetchErrors  atomic.Int64
}

func New(version, commit string) *Metrics {
	return &Metrics{start: time.Now(), version: version, commit: commit}
}

func (m *Metrics) ConnOpened() {
	m.connsActive.Add(1)
	m.connsTotal.Add(1)
}
func (m *Metrics) ConnClosed()   { m.connsActive.Add(-1) }
func (m *Metrics) FrameIn()      { m.framesIn.Add(1) }
func (m *Metrics) FrameDropped() { m.framesBad.Add(1) }
func (m *Metrics) SnapshotSent() { m.snapshotsOut.Add(1) }

func (m *Metrics) Fetched(err error) {
	m.fetches.Add(1)
	if err != nil {
		m.fetchErrors.Add(1)
	}
}

func (m *Metrics) ActiveConns() int64 { return m.connsActive.Load() }

func (m *Metrics) Snapshot() map[string]any {
	uptime := time.Since(m.start)

	return map[string]any{
		"ok": true,

		"uptime_ms": uptime.Milliseconds(),
		"uptime":    uptime.Round(time.Millisecond).String(),

		"build": map[string]any{
			"version": m.version,
			"commit":  m.commit,
		},

		"connections": map[string]any{
			"active": m.connsActive.Load(),
			"total":  m.connsTotal.Load(),
		},

		"frames": map[string]any{
			"received": m.framesIn.Load(),
			"dropped":  m.framesBad.Load(),
		},

		"snapshots_sent": m.snapshotsOut.Load(),

		"quotes": map[string]any{
			"fetches_total": m.fetches.Load(),
			"errors_total":  m.fetchErrors.Load(),
		},
	}
}
