package chrono

import (
	"supplierbot/internal/components/telemetry"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCronRunsAndRecovers(t *testing.T) {
	tel := &telemetry.RecordingAPI{}
	scheduler := NewStandardCron(tel)
	defer scheduler.Stop()

	var runs atomic.Int64
	require.NoError(t, scheduler.Cron("@every 1s", func() {
		runs.Add(1)
	}))
	require.NoError(t, scheduler.Cron("@every 1s", func() {
		panic("sweep exploded")
	}))

	require.Eventually(t, func() bool {
		return runs.Load() > 0 && tel.Has(telemetry.REPORT_BROKEN, "cron.run")
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCronRejectsBadSpec(t *testing.T) {
	scheduler := NewStandardCron(&telemetry.RecordingAPI{})
	defer scheduler.Stop()
	require.ErrorContains(t, scheduler.Cron("every now and then", func() {}), "every now and then")
}
