package pagecache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; see
// metrics/prometheus for a Prometheus implementation.
//
// Methods are called with the cache lock held and must not block.
type MetricsCollector interface {
	// RecordRead is called after each Read. n is the number of bytes returned.
	RecordRead(n int, duration time.Duration, err error)

	// RecordWrite is called after each Write. n is the number of bytes accepted.
	RecordWrite(n int, duration time.Duration, err error)

	// RecordFault is called for every page lookup; hit reports whether the
	// page was already resident.
	RecordFault(hit bool)

	// RecordEviction is called for every page evicted to make room.
	RecordEviction(dirty bool)

	// RecordFlush is called after each resource flush with the number of
	// pages written back.
	RecordFlush(pages int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRead(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordWrite(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordFault(bool)                      {}
func (NoopMetricsCollector) RecordEviction(bool)                   {}
func (NoopMetricsCollector) RecordFlush(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ReadCount       atomic.Int64
	ReadBytes       atomic.Int64
	ReadErrors      atomic.Int64
	ReadTotalNanos  atomic.Int64
	WriteCount      atomic.Int64
	WriteBytes      atomic.Int64
	WriteErrors     atomic.Int64
	Hits            atomic.Int64
	Misses          atomic.Int64
	Evictions       atomic.Int64
	DirtyEvictions  atomic.Int64
	FlushCount      atomic.Int64
	FlushPages      atomic.Int64
	FlushErrors     atomic.Int64
	FlushTotalNanos atomic.Int64
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(n int, duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadBytes.Add(int64(n))
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(n int, _ time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteBytes.Add(int64(n))
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// RecordFault implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFault(hit bool) {
	if hit {
		b.Hits.Add(1)
	} else {
		b.Misses.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(dirty bool) {
	b.Evictions.Add(1)
	if dirty {
		b.DirtyEvictions.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(pages int, duration time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushPages.Add(int64(pages))
	b.FlushTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ReadCount:      b.ReadCount.Load(),
		ReadBytes:      b.ReadBytes.Load(),
		ReadErrors:     b.ReadErrors.Load(),
		ReadAvgNanos:   avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		WriteCount:     b.WriteCount.Load(),
		WriteBytes:     b.WriteBytes.Load(),
		WriteErrors:    b.WriteErrors.Load(),
		Hits:           b.Hits.Load(),
		Misses:         b.Misses.Load(),
		Evictions:      b.Evictions.Load(),
		DirtyEvictions: b.DirtyEvictions.Load(),
		FlushCount:     b.FlushCount.Load(),
		FlushPages:     b.FlushPages.Load(),
		FlushErrors:    b.FlushErrors.Load(),
		FlushAvgNanos:  avg(b.FlushTotalNanos.Load(), b.FlushCount.Load()),
	}
}

// HitRatio returns hits / (hits + misses), or 0 before the first lookup.
func (s BasicMetricsStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ReadCount      int64
	ReadBytes      int64
	ReadErrors     int64
	ReadAvgNanos   int64
	WriteCount     int64
	WriteBytes     int64
	WriteErrors    int64
	Hits           int64
	Misses         int64
	Evictions      int64
	DirtyEvictions int64
	FlushCount     int64
	FlushPages     int64
	FlushErrors    int64
	FlushAvgNanos  int64
}
