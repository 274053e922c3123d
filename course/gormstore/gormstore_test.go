package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursebot/assistant/course"
	"github.com/coursebot/assistant/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "courses.db")
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	return New(db)
}

func TestCreateAssignsDistinctIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, domain.Course{UserID: "u1", StudentName: "小明", CourseName: "鋼琴課", CourseDate: "2026-08-01", ScheduleTime: "15:00"})
	require.NoError(t, err)
	b, err := s.Create(ctx, domain.Course{UserID: "u1", StudentName: "小華", CourseName: "游泳課", CourseDate: "2026-08-02", ScheduleTime: "16:00"})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID, "each created row must get its own primary key")

	found, err := s.FindCourse(ctx, "u1", "小明", "鋼琴課", "")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.ID)
}

func TestGetCoursesByStudentIncludesRecurringTemplateAnchoredBeforeRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, domain.Course{
		UserID: "u1", StudentName: "小明", CourseName: "游泳課",
		CourseDate: "2026-01-01", ScheduleTime: "15:00",
		IsRecurring: true, RecurrenceType: domain.RecurrenceWeekly,
	})
	require.NoError(t, err)

	rng := &course.DateRange{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC),
	}
	rows, err := s.GetCoursesByStudent(ctx, "u1", "", rng)
	require.NoError(t, err)
	require.Len(t, rows, 1, "recurring template anchored before the range must still be returned for expansion")
	assert.True(t, rows[0].IsRecurring)
}

func TestGetCoursesByStudentExcludesOutOfRangeSingleShot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, domain.Course{UserID: "u1", StudentName: "小明", CourseName: "鋼琴課", CourseDate: "2026-01-01", ScheduleTime: "15:00"})
	require.NoError(t, err)

	rng := &course.DateRange{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC),
	}
	rows, err := s.GetCoursesByStudent(ctx, "u1", "", rng)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestQueryDocumentsFiltersByCourseName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, domain.Course{UserID: "u1", StudentName: "小明", CourseName: "鋼琴課", CourseDate: "2026-08-01", ScheduleTime: "15:00"})
	require.NoError(t, err)
	_, err = s.Create(ctx, domain.Course{UserID: "u1", StudentName: "小明", CourseName: "游泳課", CourseDate: "2026-08-02", ScheduleTime: "16:00"})
	require.NoError(t, err)

	rows, err := s.QueryDocuments(ctx, "course", course.Criteria{UserID: "u1", CourseName: "鋼琴"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "鋼琴課", rows[0].CourseName)
}

func TestUpdateAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c, err := s.Create(ctx, domain.Course{UserID: "u1", StudentName: "小明", CourseName: "鋼琴課", CourseDate: "2026-08-01", ScheduleTime: "15:00"})
	require.NoError(t, err)

	newTime := "16:00"
	updated, err := s.Update(ctx, c.ID, course.Patch{ScheduleTime: &newTime})
	require.NoError(t, err)
	assert.Equal(t, "16:00", updated.ScheduleTime)

	require.NoError(t, s.Delete(ctx, c.ID))
	found, err := s.FindCourse(ctx, "u1", "小明", "鋼琴課", "")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestCheckTimeConflictsExcludesGivenID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c, err := s.Create(ctx, domain.Course{UserID: "u1", StudentName: "小明", CourseName: "鋼琴課", CourseDate: "2026-08-01", ScheduleTime: "15:00"})
	require.NoError(t, err)

	conflicts, err := s.CheckTimeConflicts(ctx, "u1", "2026-08-01", "15:00", "")
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)

	conflicts, err = s.CheckTimeConflicts(ctx, "u1", "2026-08-01", "15:00", c.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts, "excluding the course's own ID should leave no conflicts")
}
