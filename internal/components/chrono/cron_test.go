package chrono

import (
	"testing"
	"time"

	"studentevals-backend/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func TestValidateSpec(t *testing.T) {
	require.NoError(t, ValidateSpec("0 3 * * 0"))
	require.NoError(t, ValidateSpec("@every 1h"))
	require.Error(t, ValidateSpec("not a cron"))
	require.Error(t, ValidateSpec("61 * * * *"))
}

func TestStandardCronRejectsBadSpec(t *testing.T) {
	clock := FixedImpl{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewStandardCron(clock, telemetry.NewRecorder())
	require.Error(t, c.Cron("bogus", func() {}))
	require.NoError(t, c.Cron("*/5 * * * *", func() {}))
}
