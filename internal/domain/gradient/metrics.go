package gradient

import (
	"sync"
	"time"
)

// MetricsSnapshot is the worker's observable state.
type MetricsSnapshot struct {
	JobsProcessed       int64
	JobsFailed          int64
	AvgProcessingTimeMs float64
	ActiveJobs          int64
	IsRunning           bool
	IsEnabled           bool
	QueueLength         int64
	ProcessingLength    int64
	DelayedLength       int64
}

// Metrics accumulates a rolling average processing time alongside simple
// success/failure counters.
type Metrics struct {
	mu             sync.Mutex
	jobsProcessed  int64
	jobsFailed     int64
	avgProcessMs   float64
}

func (m *Metrics) recordSuccess(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobsProcessed++
	ms := float64(d.Milliseconds())
	if m.jobsProcessed == 1 {
		m.avgProcessMs = ms
		return
	}
	// exponential moving average, smoothing factor weights recent jobs
	// more heavily without retaining the full sample history.
	const alpha = 0.2
	m.avgProcessMs = alpha*ms + (1-alpha)*m.avgProcessMs
}

func (m *Metrics) recordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsFailed++
}

func (m *Metrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		JobsProcessed:       m.jobsProcessed,
		JobsFailed:          m.jobsFailed,
		AvgProcessingTimeMs: m.avgProcessMs,
	}
}
