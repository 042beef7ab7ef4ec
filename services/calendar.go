package services

import (
	"fmt"
	"time"

	"github.com/HSouheill/nairobi_verified/models"
)

// CalculateEndDate adds duration units to start using calendar arithmetic.
// Months and years land on the same day of the target month, clamped to its
// last day, so Jan 31 + 1 month is the last day of February.
func CalculateEndDate(start time.Time, duration int, unit string) (time.Time, error) {
	if duration < 1 {
		return time.Time{}, fmt.Errorf("duration must be positive, got %d", duration)
	}

	switch unit {
	case models.DurationDay:
		return start.AddDate(0, 0, duration), nil
	case models.DurationWeek:
		return start.AddDate(0, 0, 7*duration), nil
	case models.DurationMonth:
		return addMonthsClamped(start, duration), nil
	case models.DurationYear:
		return addMonthsClamped(start, 12*duration), nil
	default:
		return time.Time{}, fmt.Errorf("unknown duration unit %q", unit)
	}
}

// addMonthsClamped avoids time.AddDate's normalisation, which would turn
// Jan 31 + 1 month into early March.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	firstOfTarget := time.Date(year, month+time.Month(months), 1, hour, min, sec, t.Nanosecond(), t.Location())
	lastDay := daysIn(firstOfTarget.Year(), firstOfTarget.Month(), t.Location())
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// RenewalStart starts a renewal back to back with the previous period, or
// now when the previous period already ended.
func RenewalStart(now, previousEnd time.Time) time.Time {
	if previousEnd.After(now) {
		return previousEnd
	}
	return now
}
