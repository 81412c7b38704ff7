package dayclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayKeyUsesConfiguredZone(t *testing.T) {
	c, err := New("America/New_York")
	require.NoError(t, err)

	// UTC 2025-01-15 03:00 在纽约仍是 14 号
	instant := time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-01-14", c.DayKey(instant))
	assert.Equal(t, "2025-01-15", c.DayKey(instant.Add(2*time.Hour)))

	tokyo, err := New("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15", tokyo.DayKey(instant))
}

func TestTodayFollowsInjectedNow(t *testing.T) {
	c, err := New("America/New_York")
	require.NoError(t, err)

	now := time.Date(2025, 7, 4, 3, 59, 0, 0, time.UTC)
	fixed := c.WithNow(func() time.Time { return now })
	assert.Equal(t, "2025-07-03", fixed.Today())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, "2025-07-04", fixed.Today())
}

func TestUnknownZone(t *testing.T) {
	_, err := New("Mars/Olympus_Mons")
	assert.Error(t, err)
}
