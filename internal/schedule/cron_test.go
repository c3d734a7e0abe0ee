package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Errors(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
	} {
		_, err := Parse(expr)
		assert.Error(t, err, expr)
	}
}

func TestCron_Next(t *testing.T) {
	base := time.Date(2025, 5, 4, 10, 39, 13, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2025, 5, 4, 10, 40, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2025, 5, 5, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 5, 4, 10, 45, 0, 0, time.UTC)},
		{"0 9-17 * * 1-5", time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC)},
		{"30 0 1 * *", time.Date(2025, 6, 1, 0, 30, 0, 0, time.UTC)},
		{"0,45 10 * * *", time.Date(2025, 5, 4, 10, 45, 0, 0, time.UTC)},
		{"@hourly", time.Date(2025, 5, 4, 11, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := Parse(tt.expr)
			require.NoError(t, err)
			got, err := c.Next(base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCron_DayOfMonthOrDayOfWeek(t *testing.T) {
	// 00:00 on the 1st and on every Monday.
	c, err := Parse("0 0 1 * 1")
	require.NoError(t, err)

	got, err := c.Next(time.Date(2025, 5, 4, 10, 39, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC), got, "Monday the 5th")

	got, err = c.Next(time.Date(2025, 5, 27, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), got, "Sunday the 1st")

	// An unrestricted day-of-week leaves day-of-month alone.
	c, err = Parse("0 0 1 * *")
	require.NoError(t, err)
	got, err = c.Next(time.Date(2025, 5, 4, 10, 39, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestCron_NextImpossible(t *testing.T) {
	c, err := Parse("0 0 31 2 *")
	require.NoError(t, err)
	_, err = c.Next(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}
