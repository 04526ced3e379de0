package service

import (
	"time"

	"github.com/zynthio/zynthio/internal/compliance/entity"
)

// DueOn reports whether a category's recurrence fires on the given calendar
// date. The date must already be in the site's local day; the function is
// pure and deterministic. Event-driven frequencies never fire here.
//
// Anchors come from the category's creation timestamp: weekly uses the
// creation weekday, monthly and friends use the creation day-of-month
// (clamped to short months), six_monthly adds the creation month + 6, and
// yearly uses the creation calendar day.
func DueOn(cat *entity.Category, date time.Time) bool {
	switch cat.Frequency {
	case entity.FrequencyDaily, entity.FrequencyEvery2Hours:
		// every_2_hours materializes once per day; the intra-day cadence
		// is a UI concern.
		return true
	case entity.FrequencyWeekly:
		return date.Weekday() == cat.CreatedAt.Weekday()
	case entity.FrequencyMonthly:
		return date.Day() == clampDay(cat.CreatedAt.Day(), date.Year(), date.Month())
	case entity.FrequencyQuarterly:
		switch date.Month() {
		case time.January, time.April, time.July, time.October:
			return date.Day() == clampDay(cat.CreatedAt.Day(), date.Year(), date.Month())
		}
		return false
	case entity.FrequencySixMonthly:
		anchor := cat.CreatedAt.Month()
		opposite := time.Month((int(anchor)+5)%12 + 1)
		if date.Month() != anchor && date.Month() != opposite {
			return false
		}
		return date.Day() == clampDay(cat.CreatedAt.Day(), date.Year(), date.Month())
	case entity.FrequencyYearly:
		if date.Month() != cat.CreatedAt.Month() {
			return false
		}
		return date.Day() == clampDay(cat.CreatedAt.Day(), date.Year(), date.Month())
	}
	// per_batch, per_delivery, continuous, as_needed
	return false
}

// clampDay clamps an anchor day-of-month to the last day of the given
// month, so a category created on the 31st still fires in February.
func clampDay(day int, year int, month time.Month) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

// parseClockTime parses an HH:MM string; ok is false for empty or
// malformed values.
func parseClockTime(s string) (hour, minute int, ok bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, false
	}
	return t.Hour(), t.Minute(), true
}

// cutoffFor computes the site-local instant after which an incomplete
// checklist for the given date is overdue: the category's closes_at on the
// checklist date, or end of that day when no cutoff is configured.
func cutoffFor(date time.Time, closesAt *string, loc *time.Location) time.Time {
	y, m, d := date.Date()
	if closesAt != nil {
		if h, min, ok := parseClockTime(*closesAt); ok {
			return time.Date(y, m, d, h, min, 0, 0, loc)
		}
	}
	return time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}
