package chrono

import (
	"errors"
	"testing"

	"perspectives-watch/internal/telemetry"

	"github.com/stretchr/testify/require"
)

func TestCronRejectsBadSpec(t *testing.T) {
	c := NewStandardCron(&telemetry.Recorder{})
	defer c.Stop()

	require.Error(t, c.Cron("every now and then", func() {}))
	require.NoError(t, c.Cron("*/30 * * * *", func() {}))
	require.NoError(t, c.Cron("@every 1h", func() {}))
}

func TestCronLogger(t *testing.T) {
	recorder := &telemetry.Recorder{}
	logger := cronLogger{tel: telemetry.NewScopedAPI("cron", recorder)}

	logger.Info("wake", "now", 1, "dangling")
	logger.Error(errors.New("boom"), "panic", "job", 2)

	debug := recorder.Reports("debug")
	require.Len(t, debug, 1)
	require.Equal(t, "cron: wake", debug[0].Id)
	require.Equal(t, []any{"now: 1"}, debug[0].Params)

	broken := recorder.Reports("broken")
	require.Len(t, broken, 1)
	require.Equal(t, "cron.job", broken[0].Id)
}
