package telemetry

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentPerfStats registers process gauges that are sampled whenever the
// meter provider collects. A single scrape job holds a worker for minutes,
// these are what the worker count gets sized by.
func InstrumentPerfStats(ctx context.Context) error {
	meter := otel.Meter("supplierbot/perf_stats")

	cpuGauge, err := meter.Float64ObservableGauge("process.cpu_usage", metric.WithUnit("%"))
	if err != nil {
		return err
	}
	memoryGauge, err := meter.Int64ObservableGauge("process.allocated", metric.WithUnit("MB"))
	if err != nil {
		return err
	}
	goroutineGauge, err := meter.Int64ObservableGauge("process.goroutines")
	if err != nil {
		return err
	}

	// the first sample only primes the comparison
	_, _ = cpu.PercentWithContext(ctx, 0, false)

	registration, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		o.ObserveInt64(memoryGauge, int64(memStats.Alloc/1_000_000))
		o.ObserveInt64(goroutineGauge, int64(runtime.NumGoroutine()))

		usage, err := cpu.PercentWithContext(ctx, 0, false)
		if err == nil && len(usage) > 0 {
			o.ObserveFloat64(cpuGauge, usage[0])
		}
		return nil
	}, cpuGauge, memoryGauge, goroutineGauge)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		registration.Unregister()
	}()
	return nil
}
