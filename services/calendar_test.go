package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/nairobi_verified/models"
)

func TestCalculateEndDate(t *testing.T) {
	nairobi := time.FixedZone("EAT", 3*60*60)

	tests := []struct {
		name     string
		start    time.Time
		duration int
		unit     string
		want     time.Time
	}{
		{
			name:     "one month from a 31 day month is a calendar month not 30 days",
			start:    time.Date(2025, time.March, 15, 10, 0, 0, 0, nairobi),
			duration: 1,
			unit:     models.DurationMonth,
			want:     time.Date(2025, time.April, 15, 10, 0, 0, 0, nairobi),
		},
		{
			name:     "January 31 plus one month clamps to end of February",
			start:    time.Date(2025, time.January, 31, 8, 30, 0, 0, time.UTC),
			duration: 1,
			unit:     models.DurationMonth,
			want:     time.Date(2025, time.February, 28, 8, 30, 0, 0, time.UTC),
		},
		{
			name:     "leap year February",
			start:    time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
			duration: 1,
			unit:     models.DurationMonth,
			want:     time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "months roll over the year",
			start:    time.Date(2025, time.November, 30, 0, 0, 0, 0, time.UTC),
			duration: 3,
			unit:     models.DurationMonth,
			want:     time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "year from leap day",
			start:    time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
			duration: 1,
			unit:     models.DurationYear,
			want:     time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "weeks add days",
			start:    time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
			duration: 2,
			unit:     models.DurationWeek,
			want:     time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "days",
			start:    time.Date(2025, time.January, 30, 0, 0, 0, 0, time.UTC),
			duration: 3,
			unit:     models.DurationDay,
			want:     time.Date(2025, time.February, 2, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateEndDate(tt.start, tt.duration, tt.unit)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestCalculateEndDate_OneMonthIsNotThirtyDays(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	got, err := CalculateEndDate(start, 1, models.DurationMonth)
	require.NoError(t, err)
	assert.False(t, got.Equal(start.Add(30*24*time.Hour)))
	assert.Equal(t, time.February, got.Month())
	assert.Equal(t, 1, got.Day())
}

func TestCalculateEndDate_Invalid(t *testing.T) {
	start := time.Now()
	_, err := CalculateEndDate(start, 0, models.DurationDay)
	assert.Error(t, err)
	_, err = CalculateEndDate(start, 1, "fortnight")
	assert.Error(t, err)
}

func TestRenewalStart(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	before := now.AddDate(0, 0, 10)
	assert.Equal(t, before, RenewalStart(now, before), "renewing early starts at previous end")

	after := now.AddDate(0, 0, -10)
	assert.Equal(t, now, RenewalStart(now, after), "renewing after expiry starts now")
}
