package chrono

import (
	"context"
	"standings-sync/internal/testutil"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStandardTimeLocation(t *testing.T) {
	clock, err := NewStandardTime("America/Chicago")
	require.NoError(t, err)
	require.Equal(t, "America/Chicago", clock.Now().Location().String())

	local, err := NewStandardTime("")
	require.NoError(t, err)
	require.Equal(t, time.Local, local.Location())

	_, err = NewStandardTime("Not/AZone")
	require.Error(t, err)
}

func TestDateStamp(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	// 03:30 UTC is still the previous evening in Chicago
	instant := time.Date(2024, time.October, 3, 3, 30, 0, 0, time.UTC)
	require.Equal(t, "2024-10-03", DateStamp(instant))
	require.Equal(t, "2024-10-02", DateStamp(instant.In(chicago)))
}

func TestCronRejectsInvalidSpec(t *testing.T) {
	cron := NewStandardCron(&testutil.RecordingAPI{}, time.UTC)
	require.Error(t, cron.Cron("not a spec", func() {}))
	require.NoError(t, cron.Cron("*/5 * * * *", func() {}))

	cron.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, cron.Stop(ctx))
}
