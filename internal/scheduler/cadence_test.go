package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseEvery(t *testing.T) {
	c, err := Parse("@every 30m")
	require.NoError(t, err)
	every, ok := c.(Every)
	require.True(t, ok)
	require.Equal(t, 30*time.Minute, every.Interval)
}

func TestParseEveryRejectsMalformed(t *testing.T) {
	_, err := Parse("@every")
	require.Error(t, err)

	_, err = Parse("@every soon")
	require.Error(t, err)

	_, err = Parse("@every -5m")
	require.Error(t, err)
}

func TestParseDaily(t *testing.T) {
	c, err := Parse("@daily 08:00")
	require.NoError(t, err)
	daily, ok := c.(Daily)
	require.True(t, ok)
	require.Equal(t, 8, daily.Hour)
	require.Equal(t, 0, daily.Minute)
}

func TestParseDailyRejectsMalformed(t *testing.T) {
	_, err := Parse("@daily")
	require.Error(t, err)

	_, err = Parse("@daily 25:00")
	require.Error(t, err)

	_, err = Parse("@daily 08-00")
	require.Error(t, err)
}

func TestParseWeekly(t *testing.T) {
	c, err := Parse("@weekly Mon 07:00")
	require.NoError(t, err)
	weekly, ok := c.(Weekly)
	require.True(t, ok)
	require.Equal(t, time.Monday, weekly.Weekday)
	require.Equal(t, 7, weekly.Hour)
}

func TestParseWeeklyRejectsUnknownDay(t *testing.T) {
	_, err := Parse("@weekly Blursday 07:00")
	require.Error(t, err)
}

func TestParseUnknownForm(t *testing.T) {
	_, err := Parse("@monthly 1 08:00")
	require.Error(t, err)

	_, err = Parse("")
	require.Error(t, err)
}

func TestEveryNextAddsInterval(t *testing.T) {
	after := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	e := Every{Interval: 30 * time.Minute}
	require.Equal(t, after.Add(30*time.Minute), e.Next(after))
}

func TestDailyNextSameDay(t *testing.T) {
	after := time.Date(2026, 7, 31, 7, 0, 0, 0, time.UTC)
	d := Daily{Hour: 8, Minute: 0}
	want := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC)
	require.Equal(t, want, d.Next(after))
}

func TestDailyNextRollsToNextDay(t *testing.T) {
	after := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	d := Daily{Hour: 8, Minute: 0}
	want := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	require.Equal(t, want, d.Next(after))
}

func TestDailyNextExactlyAtBoundaryRollsToNextDay(t *testing.T) {
	after := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC)
	d := Daily{Hour: 8, Minute: 0}
	want := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	require.Equal(t, want, d.Next(after))
}

func TestWeeklyNextSameWeek(t *testing.T) {
	// 2026-07-31 is a Friday.
	after := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	w := Weekly{Weekday: time.Monday, Hour: 7, Minute: 0}
	want := time.Date(2026, 8, 3, 7, 0, 0, 0, time.UTC) // next Monday
	require.Equal(t, want, w.Next(after))
}

func TestWeeklyNextRollsWhenSameDayButPast(t *testing.T) {
	after := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC) // Monday, after 07:00
	w := Weekly{Weekday: time.Monday, Hour: 7, Minute: 0}
	want := time.Date(2026, 8, 10, 7, 0, 0, 0, time.UTC) // following Monday
	require.Equal(t, want, w.Next(after))
}

func TestWeeklyNextSameDayBeforeTime(t *testing.T) {
	after := time.Date(2026, 8, 3, 6, 0, 0, 0, time.UTC) // Monday, before 07:00
	w := Weekly{Weekday: time.Monday, Hour: 7, Minute: 0}
	want := time.Date(2026, 8, 3, 7, 0, 0, 0, time.UTC)
	require.Equal(t, want, w.Next(after))
}
