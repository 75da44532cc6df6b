package shallfs

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the flush-latency histogram buckets in
// nanoseconds, log-spaced from 1us to 10s.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics for one mounted journal.
type Metrics struct {
	AppendOps    atomic.Uint64
	AppendBytes  atomic.Uint64
	AppendErrors atomic.Uint64

	FlushOps    atomic.Uint64
	FlushErrors atomic.Uint64

	DrainOps     atomic.Uint64
	DrainBytes   atomic.Uint64
	DrainRecords atomic.Uint64
	DrainErrors  atomic.Uint64

	OverflowEvents atomic.Uint64
	RecordsDropped atomic.Uint64 // current gauge, set by RecordOverflow

	TotalFlushLatencyNs atomic.Uint64
	FlushCount          atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordAppend records one Append call.
func (m *Metrics) RecordAppend(bytes uint64, success bool) {
	m.AppendOps.Add(1)
	if success {
		m.AppendBytes.Add(bytes)
	} else {
		m.AppendErrors.Add(1)
	}
}

// RecordFlush records one commit-engine flush. MetricsObserver's
// ObserveFlush, which satisfies commit.Observer, forwards here.
func (m *Metrics) RecordFlush(latencyNs uint64, success bool) {
	m.FlushOps.Add(1)
	if !success {
		m.FlushErrors.Add(1)
		return
	}
	m.TotalFlushLatencyNs.Add(latencyNs)
	m.FlushCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// RecordDrain records one consumer ReadRecords call.
func (m *Metrics) RecordDrain(bytes uint64, records int, success bool) {
	m.DrainOps.Add(1)
	if success {
		m.DrainBytes.Add(bytes)
		m.DrainRecords.Add(uint64(records))
	} else {
		m.DrainErrors.Add(1)
	}
}

// RecordOverflow updates the overflow gauges. The commit engine does not
// report overflows to its observer, so these gauges change only when a
// caller invokes RecordOverflow or ObserveOverflow directly.
func (m *Metrics) RecordOverflow(firstOverflow bool, droppedNow uint64) {
	if firstOverflow {
		m.OverflowEvents.Add(1)
	}
	m.RecordsDropped.Store(droppedNow)
}

// Stop marks the journal as unmounted.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to print or
// serialize.
type MetricsSnapshot struct {
	AppendOps    uint64
	AppendBytes  uint64
	AppendErrors uint64

	FlushOps    uint64
	FlushErrors uint64

	DrainOps     uint64
	DrainBytes   uint64
	DrainRecords uint64
	DrainErrors  uint64

	OverflowEvents uint64
	RecordsDropped uint64

	AvgFlushLatencyNs uint64
	FlushP50Ns        uint64
	FlushP99Ns        uint64
	FlushP999Ns       uint64
	LatencyHistogram  [numLatencyBuckets]uint64

	UptimeNs uint64
}

// Snapshot captures the current values of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		AppendOps:      m.AppendOps.Load(),
		AppendBytes:    m.AppendBytes.Load(),
		AppendErrors:   m.AppendErrors.Load(),
		FlushOps:       m.FlushOps.Load(),
		FlushErrors:    m.FlushErrors.Load(),
		DrainOps:       m.DrainOps.Load(),
		DrainBytes:     m.DrainBytes.Load(),
		DrainRecords:   m.DrainRecords.Load(),
		DrainErrors:    m.DrainErrors.Load(),
		OverflowEvents: m.OverflowEvents.Load(),
		RecordsDropped: m.RecordsDropped.Load(),
	}

	flushCount := m.FlushCount.Load()
	if flushCount > 0 {
		snap.AvgFlushLatencyNs = m.TotalFlushLatencyNs.Load() / flushCount
		snap.FlushP50Ns = m.calculatePercentile(0.50)
		snap.FlushP99Ns = m.calculatePercentile(0.99)
		snap.FlushP999Ns = m.calculatePercentile(0.999)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	return snap
}

// calculatePercentile estimates the flush latency at the given
// percentile (0.0-1.0) by linear interpolation between histogram
// buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.FlushCount.Load()
	if total == 0 {
		return 0
	}

	target := uint64(float64(total) * percentile)
	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		count := m.LatencyBuckets[i].Load()
		if count >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if count == prevCount {
				return bucket
			}
			fraction := float64(target-prevCount) / float64(count-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Observer is the journal-wide metrics hook; it is a superset of
// commit.Observer (ObserveFlush alone) so a *MetricsObserver can be
// handed directly to commit.Config.Observer.
type Observer interface {
	ObserveAppend(bytes uint64, success bool)
	ObserveFlush(latencyNs uint64, success bool)
	ObserveDrain(bytes uint64, records int, success bool)
	ObserveOverflow(firstOverflow bool, droppedNow uint64)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAppend(uint64, bool)     {}
func (NoOpObserver) ObserveFlush(uint64, bool)      {}
func (NoOpObserver) ObserveDrain(uint64, int, bool) {}
func (NoOpObserver) ObserveOverflow(bool, uint64)   {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAppend(bytes uint64, success bool) {
	o.metrics.RecordAppend(bytes, success)
}

func (o *MetricsObserver) ObserveFlush(latencyNs uint64, success bool) {
	o.metrics.RecordFlush(latencyNs, success)
}

func (o *MetricsObserver) ObserveDrain(bytes uint64, records int, success bool) {
	o.metrics.RecordDrain(bytes, records, success)
}

func (o *MetricsObserver) ObserveOverflow(firstOverflow bool, droppedNow uint64) {
	o.metrics.RecordOverflow(firstOverflow, droppedNow)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
