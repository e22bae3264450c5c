package pagecache

import (
	"log/slog"

	"github.com/hupe1980/pagecache/device"
	"github.com/hupe1980/pagecache/internal/mem"
)

type options struct {
	device           device.Device
	metricsCollector MetricsCollector
	logger           *Logger
	memoryLimit      int64
	writeBackRate    int64
	alignment        int
}

// Option configures a Cache.
type Option func(*options)

// WithDevice sets the device resources are opened on.
//
// If nil is passed, local files with direct I/O are used.
func WithDevice(d device.Device) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &pagecache.BasicMetricsCollector{}
//	c, _ := pagecache.New(4096, 256, pagecache.WithMetricsCollector(metrics))
//	// ... use c ...
//	stats := metrics.GetStats()
//	fmt.Printf("hit ratio: %.2f\n", stats.HitRatio())
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMemoryLimit caps the bytes held in page buffers. Page faults that would
// exceed the limit fail with ErrAllocation. Zero means no limit beyond the
// page count.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithWriteBackRate limits write-back throughput in bytes per second.
// Zero means unlimited.
func WithWriteBackRate(bytesPerSec int64) Option {
	return func(o *options) {
		o.writeBackRate = bytesPerSec
	}
}

// WithAlignment sets the memory alignment of page buffers. It must be a power
// of two dividing the block size. Defaults to 4096, as required for O_DIRECT.
func WithAlignment(align int) Option {
	return func(o *options) {
		o.alignment = align
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		alignment:        mem.DirectIOAlignment,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.device == nil {
		o.device = device.NewLocal()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
