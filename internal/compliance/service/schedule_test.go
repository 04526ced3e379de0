package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zynthio/zynthio/internal/compliance/entity"
)

func mkCategory(frequency string, createdAt time.Time) *entity.Category {
	return &entity.Category{
		ID:        "cat-1",
		Name:      "Test Category",
		Frequency: frequency,
		IsActive:  true,
		CreatedAt: createdAt,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDueOnDaily(t *testing.T) {
	cat := mkCategory(entity.FrequencyDaily, day(2025, time.March, 3))

	assert.True(t, DueOn(cat, day(2025, time.March, 4)))
	assert.True(t, DueOn(cat, day(2025, time.December, 25)))
	assert.True(t, DueOn(cat, day(2026, time.February, 28)))
}

func TestDueOnEvery2Hours(t *testing.T) {
	// Intra-day cadence is a client concern; the resolver treats it as
	// one instance per day.
	cat := mkCategory(entity.FrequencyEvery2Hours, day(2025, time.March, 3))

	assert.True(t, DueOn(cat, day(2025, time.March, 3)))
	assert.True(t, DueOn(cat, day(2025, time.March, 4)))
}

func TestDueOnWeekly(t *testing.T) {
	// Created on a Wednesday.
	cat := mkCategory(entity.FrequencyWeekly, day(2025, time.March, 5))

	assert.True(t, DueOn(cat, day(2025, time.March, 12)), "next Wednesday")
	assert.True(t, DueOn(cat, day(2025, time.April, 2)), "a Wednesday next month")
	assert.False(t, DueOn(cat, day(2025, time.March, 11)), "Tuesday")
	assert.False(t, DueOn(cat, day(2025, time.March, 13)), "Thursday")
}

func TestDueOnMonthly(t *testing.T) {
	cat := mkCategory(entity.FrequencyMonthly, day(2025, time.January, 15))

	assert.True(t, DueOn(cat, day(2025, time.February, 15)))
	assert.True(t, DueOn(cat, day(2025, time.March, 15)))
	assert.False(t, DueOn(cat, day(2025, time.February, 14)))
	assert.False(t, DueOn(cat, day(2025, time.February, 16)))
}

func TestDueOnMonthlyClampsShortMonths(t *testing.T) {
	cat := mkCategory(entity.FrequencyMonthly, day(2025, time.January, 31))

	assert.True(t, DueOn(cat, day(2025, time.February, 28)), "non-leap February clamps to 28")
	assert.True(t, DueOn(cat, day(2028, time.February, 29)), "leap February clamps to 29")
	assert.True(t, DueOn(cat, day(2025, time.April, 30)), "April clamps to 30")
	assert.True(t, DueOn(cat, day(2025, time.March, 31)))
	assert.False(t, DueOn(cat, day(2025, time.February, 27)))
	assert.False(t, DueOn(cat, day(2025, time.March, 30)))
}

func TestDueOnQuarterly(t *testing.T) {
	cat := mkCategory(entity.FrequencyQuarterly, day(2025, time.February, 10))

	assert.True(t, DueOn(cat, day(2025, time.April, 10)))
	assert.True(t, DueOn(cat, day(2025, time.July, 10)))
	assert.True(t, DueOn(cat, day(2025, time.October, 10)))
	assert.True(t, DueOn(cat, day(2026, time.January, 10)))
	assert.False(t, DueOn(cat, day(2025, time.May, 10)), "not a quarter month")
	assert.False(t, DueOn(cat, day(2025, time.April, 11)), "wrong day")
}

func TestDueOnSixMonthly(t *testing.T) {
	cat := mkCategory(entity.FrequencySixMonthly, day(2025, time.March, 20))

	assert.True(t, DueOn(cat, day(2025, time.September, 20)), "anchor month + 6")
	assert.True(t, DueOn(cat, day(2026, time.March, 20)), "anchor month")
	assert.False(t, DueOn(cat, day(2025, time.June, 20)))
	assert.False(t, DueOn(cat, day(2025, time.September, 21)))
}

func TestDueOnSixMonthlyWrapsYear(t *testing.T) {
	cat := mkCategory(entity.FrequencySixMonthly, day(2025, time.October, 5))

	assert.True(t, DueOn(cat, day(2026, time.April, 5)))
	assert.True(t, DueOn(cat, day(2026, time.October, 5)))
	assert.False(t, DueOn(cat, day(2026, time.May, 5)))
}

func TestDueOnYearly(t *testing.T) {
	cat := mkCategory(entity.FrequencyYearly, day(2024, time.February, 29))

	assert.True(t, DueOn(cat, day(2028, time.February, 29)), "leap anniversary")
	assert.True(t, DueOn(cat, day(2025, time.February, 28)), "non-leap year clamps to 28")
	assert.False(t, DueOn(cat, day(2025, time.March, 1)))
	assert.False(t, DueOn(cat, day(2025, time.January, 28)))
}

func TestDueOnEventDrivenNeverFires(t *testing.T) {
	for _, freq := range []string{
		entity.FrequencyPerBatch,
		entity.FrequencyPerDelivery,
		entity.FrequencyContinuous,
		entity.FrequencyAsNeeded,
	} {
		cat := mkCategory(freq, day(2025, time.March, 3))
		assert.False(t, DueOn(cat, day(2025, time.March, 3)), freq)
		assert.False(t, DueOn(cat, day(2026, time.March, 3)), freq)
	}
}

func TestClampDay(t *testing.T) {
	assert.Equal(t, 28, clampDay(31, 2025, time.February))
	assert.Equal(t, 29, clampDay(31, 2028, time.February))
	assert.Equal(t, 30, clampDay(31, 2025, time.April))
	assert.Equal(t, 31, clampDay(31, 2025, time.March))
	assert.Equal(t, 15, clampDay(15, 2025, time.February))
}

func TestParseClockTime(t *testing.T) {
	h, m, ok := parseClockTime("17:30")
	assert.True(t, ok)
	assert.Equal(t, 17, h)
	assert.Equal(t, 30, m)

	_, _, ok = parseClockTime("")
	assert.False(t, ok)
	_, _, ok = parseClockTime("25:00")
	assert.False(t, ok)
	_, _, ok = parseClockTime("5pm")
	assert.False(t, ok)
}

func TestCutoffFor(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	assert.NoError(t, err)
	date := day(2025, time.June, 10)

	closesAt := "17:00"
	cutoff := cutoffFor(date, &closesAt, loc)
	assert.Equal(t, time.Date(2025, time.June, 10, 17, 0, 0, 0, loc), cutoff)

	// No cutoff configured means end of the local day.
	cutoff = cutoffFor(date, nil, loc)
	assert.Equal(t, time.Date(2025, time.June, 11, 0, 0, 0, 0, loc), cutoff)

	// Malformed cutoff falls back to end of day too.
	bad := "nope"
	cutoff = cutoffFor(date, &bad, loc)
	assert.Equal(t, time.Date(2025, time.June, 11, 0, 0, 0, 0, loc), cutoff)
}
