package billingcycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextBillingDate(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		cycle Cycle
		want  time.Time
	}{
		{"monthly month overflow", date(2024, time.January, 31), Monthly, date(2024, time.March, 2)},
		{"monthly", date(2024, time.January, 15), Monthly, date(2024, time.February, 15)},
		{"quarterly", date(2024, time.November, 30), Quarterly, date(2025, time.March, 2)},
		{"yearly", date(2024, time.January, 15), Yearly, date(2025, time.January, 15)},
		{"yearly leap day", date(2024, time.February, 29), Yearly, date(2025, time.March, 1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextBillingDate(tc.start, tc.cycle)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, tc.want.Equal(*got), "want %s got %s", tc.want, *got)
		})
	}
}

func TestNextBillingDate_OneTimeHasNoDate(t *testing.T) {
	for _, start := range []time.Time{date(2024, time.January, 31), date(1999, time.December, 31)} {
		got, err := NextBillingDate(start, OneTime)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestNextBillingDate_Idempotent(t *testing.T) {
	start := date(2024, time.May, 31)
	first, err := NextBillingDate(start, Quarterly)
	require.NoError(t, err)
	second, err := NextBillingDate(start, Quarterly)
	require.NoError(t, err)
	assert.Equal(t, *first, *second)
}

func TestNextBillingDate_RejectsUnknownCycle(t *testing.T) {
	_, err := NextBillingDate(date(2024, time.January, 1), Cycle("weekly"))
	assert.ErrorIs(t, err, ErrInvalidBillingCycle)
}

func TestParse(t *testing.T) {
	c, err := Parse(" Monthly ")
	require.NoError(t, err)
	assert.Equal(t, Monthly, c)

	_, err = Parse("daily")
	assert.ErrorIs(t, err, ErrInvalidBillingCycle)
	assert.False(t, OneTime.Recurring())
	assert.True(t, Yearly.Recurring())
}
