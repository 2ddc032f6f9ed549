package processor

import (
	"sync/atomic"
	"time"
)

// ServiceMetrics keeps in-process counters for the periodic stats log line.
// Prometheus carries the same signals for dashboards.
type ServiceMetrics struct {
	handled     int64
	failed      int64
	duplicates  int64
	escalations int64
	durationNs  int64
	startedNs   int64
}

type Stats struct {
	Handled       int64
	Failed        int64
	Duplicates    int64
	Escalations   int64
	RatePerSecond float64
	AvgDuration   time.Duration
	Uptime        time.Duration
}

func NewServiceMetrics() *ServiceMetrics {
	return &ServiceMetrics{startedNs: time.Now().UnixNano()}
}

func (m *ServiceMetrics) RecordSuccess(duration time.Duration) {
	atomic.AddInt64(&m.handled, 1)
	atomic.AddInt64(&m.durationNs, int64(duration))
}

func (m *ServiceMetrics) RecordFailure() {
	atomic.AddInt64(&m.failed, 1)
}

func (m *ServiceMetrics) RecordDuplicate() {
	atomic.AddInt64(&m.duplicates, 1)
}

func (m *ServiceMetrics) RecordEscalation() {
	atomic.AddInt64(&m.escalations, 1)
}

func (m *ServiceMetrics) Snapshot() Stats {
	handled := atomic.LoadInt64(&m.handled)
	uptime := time.Since(time.Unix(0, atomic.LoadInt64(&m.startedNs)))

	s := Stats{
		Handled:     handled,
		Failed:      atomic.LoadInt64(&m.failed),
		Duplicates:  atomic.LoadInt64(&m.duplicates),
		Escalations: atomic.LoadInt64(&m.escalations),
		Uptime:      uptime,
	}
	if secs := uptime.Seconds(); secs > 0 {
		s.RatePerSecond = float64(handled) / secs
	}
	if handled > 0 {
		s.AvgDuration = time.Duration(atomic.LoadInt64(&m.durationNs) / handled)
	}
	return s
}
