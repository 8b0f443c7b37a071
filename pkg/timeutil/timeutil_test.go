package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 20:30 UTC is already the next day at UTC+5.
	ts := time.Date(2024, 3, 10, 20, 30, 0, 0, time.UTC)

	start := StartOfDay(ts, loc)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, loc), start)
	assert.Equal(t, "2024-03-11", FormatDay(ts, loc))
	assert.Equal(t, "2024-03-10", FormatDay(ts, nil))
}

func TestDaysAgo(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), DaysAgo(now, 3, time.UTC))
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Mars/Olympus")
	assert.Error(t, err)
	assert.Equal(t, time.UTC, MustLocation("Mars/Olympus"))
}
