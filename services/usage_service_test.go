package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayWindowLocalDay(t *testing.T) {
	// 2024-06-01 20:00 UTC is already June 2nd, 05:00 in Tokyo
	now := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)

	from, to := DayWindow("Asia/Tokyo", now)

	jst, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	assert.True(t, from.Equal(time.Date(2024, 6, 2, 0, 0, 0, 0, jst)))
	assert.Equal(t, 24*time.Hour, to.Sub(from))

	// half-open: now is inside, the next local midnight is not
	assert.False(t, now.Before(from))
	assert.True(t, now.Before(to))
	assert.False(t, to.Add(-time.Nanosecond).Before(from))
}

func TestDayWindowFallsBackToUTC(t *testing.T) {
	now := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)

	for _, tz := range []string{"", "Not/AZone"} {
		from, to := DayWindow(tz, now)
		assert.True(t, from.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)), "tz=%q", tz)
		assert.True(t, to.Equal(time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)), "tz=%q", tz)
	}
}
