// Package tasks implements the TaskHandlers: the domain operations that
// execute over CourseStore/CalendarSync once the Dispatcher has picked
// an intent.
package tasks

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/coursebot/assistant/domain"
)

// buildRecurrenceRule turns a recurring course template into an RRULE
// rule anchored at its first occurrence, grounded on the
// hray3182-LifeLine rrule wrapper's RRuleBuilder.
func buildRecurrenceRule(c domain.Course) (*rrule.RRule, error) {
	dtstart, err := courseDateTime(c.CourseDate, c.ScheduleTime)
	if err != nil {
		return nil, fmt.Errorf("tasks: invalid anchor date/time: %w", err)
	}

	switch c.RecurrenceType {
	case domain.RecurrenceDaily:
		return rrule.NewRRule(rrule.ROption{Freq: rrule.DAILY, Interval: 1, Dtstart: dtstart})
	case domain.RecurrenceWeekly:
		weekdays := make([]rrule.Weekday, 0, len(c.DayOfWeek))
		for _, d := range c.DayOfWeek {
			weekdays = append(weekdays, rruleWeekday(d))
		}
		if len(weekdays) == 0 {
			weekdays = []rrule.Weekday{rruleWeekday(int(dtstart.Weekday()))}
		}
		return rrule.NewRRule(rrule.ROption{Freq: rrule.WEEKLY, Interval: 1, Byweekday: weekdays, Dtstart: dtstart})
	case domain.RecurrenceMonthly:
		// HandleAddCourse rejects new monthly templates (NOT_IMPLEMENTED_MONTHLY);
		// this branch only expands any that already exist in the store.
		return rrule.NewRRule(rrule.ROption{Freq: rrule.MONTHLY, Interval: 1, Bymonthday: []int{dtstart.Day()}, Dtstart: dtstart})
	default:
		return nil, fmt.Errorf("tasks: course is not recurring")
	}
}

func rruleWeekday(d int) rrule.Weekday {
	switch d {
	case 0:
		return rrule.SU
	case 1:
		return rrule.MO
	case 2:
		return rrule.TU
	case 3:
		return rrule.WE
	case 4:
		return rrule.TH
	case 5:
		return rrule.FR
	case 6:
		return rrule.SA
	default:
		return rrule.MO
	}
}

func courseDateTime(dateStr, timeStr string) (time.Time, error) {
	if timeStr == "" {
		timeStr = "00:00"
	}
	return time.ParseInLocation("2006-01-02 15:04", dateStr+" "+timeStr, time.Local)
}

// expandOccurrences returns every concrete occurrence of a recurring
// course template within [start, end], inclusive on both ends.
func expandOccurrences(c domain.Course, start, end time.Time) ([]time.Time, error) {
	rule, err := buildRecurrenceRule(c)
	if err != nil {
		return nil, err
	}
	return rule.Between(start, end, true), nil
}
