package chrono

import (
	"fmt"
	"supplierbot/internal/components/telemetry"

	"github.com/robfig/cron/v3"
)

// CronAPI schedules recurring work.
type CronAPI interface {
	Cron(spec string, callback func()) error
}

// StandardCron runs callbacks on a github.com/robfig/cron/v3 scheduler. A run
// that is still going when its next tick arrives skips that tick, and a
// panicking run is reported instead of taking the process down.
type StandardCron struct {
	cron *cron.Cron
}

// NewStandardCron starts a scheduler that runs until Stop is called.
func NewStandardCron(tel telemetry.API) StandardCron {
	logger := cronLogger{tel: telemetry.NewScopedAPI("cron", tel)}
	scheduler := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	scheduler.Start()
	return StandardCron{cron: scheduler}
}

// Cron accepts the standard 5 field specs and descriptors like "@every 1m".
func (s StandardCron) Cron(spec string, callback func()) error {
	_, err := s.cron.AddFunc(spec, callback)
	if err != nil {
		return fmt.Errorf("cron spec %q: %w", spec, err)
	}
	return nil
}

// Stop stops scheduling new runs, it does not wait for running ones.
func (s StandardCron) Stop() {
	s.cron.Stop()
}

// cronLogger adapts telemetry.API to cron.Logger.
type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken("run", append([]any{fmt.Errorf("%s: %w", msg, err)}, keysAndValues...)...)
}
