package tasks

import (
	"time"

	"github.com/coursebot/assistant/domain"
)

// resolveDate turns a timeReference token, or an already-concrete
// courseDate, into a single "YYYY-MM-DD" string anchored at now. Falls
// back to today when neither is present, matching the convention that
// an utterance naming only a time of day means "today" unless a
// relative token says otherwise.
func resolveDate(ref domain.TimeReference, courseDate string, now time.Time) string {
	if courseDate != "" {
		return courseDate
	}
	days, ok := dayOffset(ref)
	if !ok {
		days = 0
	}
	return now.AddDate(0, 0, days).Format("2006-01-02")
}

func dayOffset(ref domain.TimeReference) (int, bool) {
	switch ref {
	case domain.TimeRefToday:
		return 0, true
	case domain.TimeRefTomorrow:
		return 1, true
	case domain.TimeRefDayAfterTomorrow:
		return 2, true
	case domain.TimeRefYesterday:
		return -1, true
	default:
		return 0, false
	}
}

// resolveRange computes [start, end] for a query's timeReference, or a
// single-day range around courseDate when no relative reference applies.
func resolveRange(ref domain.TimeReference, courseDate string, now time.Time) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch ref {
	case domain.TimeRefThisWeek:
		start := startOfWeek(today)
		return start, endOfDay(start.AddDate(0, 0, 6))
	case domain.TimeRefNextWeek:
		start := startOfWeek(today).AddDate(0, 0, 7)
		return start, endOfDay(start.AddDate(0, 0, 6))
	case domain.TimeRefLastWeek:
		start := startOfWeek(today).AddDate(0, 0, -7)
		return start, endOfDay(start.AddDate(0, 0, 6))
	}

	if courseDate != "" {
		d, err := time.ParseInLocation("2006-01-02", courseDate, now.Location())
		if err == nil {
			return d, endOfDay(d)
		}
	}
	if days, ok := dayOffset(ref); ok {
		d := today.AddDate(0, 0, days)
		return d, endOfDay(d)
	}
	return today, endOfDay(today)
}

// startOfWeek returns the Monday of t's week.
func startOfWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return t.AddDate(0, 0, -(weekday - 1))
}

// endOfDay returns the last representable instant of t's calendar day, so
// range queries that bound a day by date alone still capture occurrences
// scheduled later that same day (e.g. a recurring template's 15:00 slot).
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
