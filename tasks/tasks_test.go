package tasks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursebot/assistant/config"
	"github.com/coursebot/assistant/course"
	"github.com/coursebot/assistant/course/calendarmock"
	"github.com/coursebot/assistant/dispatcher"
	"github.com/coursebot/assistant/domain"
)

// fakeStore is an in-memory course.Store double for exercising handlers
// without a real database.
type fakeStore struct {
	courses   map[string]domain.Course
	nextID    int
	conflicts bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{courses: map[string]domain.Course{}}
}

func (f *fakeStore) GetOrCreateParent(ctx context.Context, userID string) (domain.Parent, error) {
	return domain.Parent{UserID: userID}, nil
}

func (f *fakeStore) GetCoursesByStudent(ctx context.Context, userID, studentName string, rng *course.DateRange) ([]domain.Course, error) {
	var out []domain.Course
	for _, c := range f.courses {
		if c.UserID != userID || c.Cancelled {
			continue
		}
		if studentName != "" && c.StudentName != studentName {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) FindCourse(ctx context.Context, userID, studentName, courseName, courseDate string) (*domain.Course, error) {
	for _, c := range f.courses {
		if c.UserID == userID && c.StudentName == studentName && c.CourseName == courseName && !c.Cancelled {
			if courseDate != "" && c.CourseDate != courseDate {
				continue
			}
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Create(ctx context.Context, c domain.Course) (domain.Course, error) {
	f.nextID++
	c.ID = fmt.Sprintf("c%d", f.nextID)
	if c.Status == "" {
		c.Status = domain.CourseStatusScheduled
	}
	f.courses[c.ID] = c
	return c, nil
}

func (f *fakeStore) Update(ctx context.Context, id string, patch course.Patch) (domain.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return domain.Course{}, fmt.Errorf("fakeStore: unknown id %q", id)
	}
	if patch.CourseName != nil {
		c.CourseName = *patch.CourseName
	}
	if patch.ScheduleTime != nil {
		c.ScheduleTime = *patch.ScheduleTime
	}
	if patch.CourseDate != nil {
		c.CourseDate = *patch.CourseDate
	}
	if patch.Location != nil {
		c.Location = *patch.Location
	}
	if patch.Teacher != nil {
		c.Teacher = *patch.Teacher
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.Cancelled != nil {
		c.Cancelled = *patch.Cancelled
	}
	if patch.CalendarEventID != nil {
		c.CalendarEventID = *patch.CalendarEventID
	}
	f.courses[id] = c
	return c, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	delete(f.courses, id)
	return nil
}

func (f *fakeStore) CheckTimeConflicts(ctx context.Context, userID, courseDate, scheduleTime, excludeID string) ([]domain.Course, error) {
	if f.conflicts {
		return []domain.Course{{ID: "other", CourseDate: courseDate, ScheduleTime: scheduleTime}}, nil
	}
	return nil, nil
}

func (f *fakeStore) QueryDocuments(ctx context.Context, entityType string, criteria course.Criteria) ([]domain.Course, error) {
	return f.GetCoursesByStudent(ctx, criteria.UserID, criteria.StudentName, criteria.Range)
}

func testDeps(store *fakeStore) *Deps {
	registry := config.NewRegistry(config.Config{StrictRecordRequiresCourse: true}, nil)
	fixedNow := time.Date(2026, 7, 31, 9, 0, 0, 0, time.Local)
	return &Deps{
		Courses:  store,
		Calendar: calendarmock.New(),
		Registry: registry,
		Now:      func() time.Time { return fixedNow },
	}
}

func TestHandleAddCourseMissingFields(t *testing.T) {
	d := testDeps(newFakeStore())
	res := d.HandleAddCourse(context.Background(), domain.Slots{StudentName: "小明"}, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.False(t, res.Success)
	assert.Equal(t, domain.MissingFields, res.Code)
}

func TestHandleAddCourseSuccess(t *testing.T) {
	d := testDeps(newFakeStore())
	s := domain.Slots{StudentName: "小明", CourseName: "鋼琴課", ScheduleTime: "15:00", TimeReference: domain.TimeRefTomorrow}
	res := d.HandleAddCourse(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.True(t, res.Success)
	assert.Equal(t, domain.AddCourseOK, res.Code)
}

func TestHandleAddCoursePastDateRejected(t *testing.T) {
	d := testDeps(newFakeStore())
	s := domain.Slots{StudentName: "小明", CourseName: "鋼琴課", ScheduleTime: "15:00", CourseDate: "2020-01-01"}
	res := d.HandleAddCourse(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.False(t, res.Success)
	assert.Equal(t, domain.InvalidPastTime, res.Code)
}

func TestHandleAddCourseInvalidTimeRejected(t *testing.T) {
	d := testDeps(newFakeStore())
	s := domain.Slots{StudentName: "小明", CourseName: "數學課", TimeInvalid: true}
	res := d.HandleAddCourse(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.False(t, res.Success)
	assert.Equal(t, domain.InvalidTime, res.Code)
}

func TestHandleAddCourseMonthlyRecurrenceNotImplemented(t *testing.T) {
	d := testDeps(newFakeStore())
	s := domain.Slots{
		StudentName: "小明", CourseName: "鋼琴課", ScheduleTime: "15:00",
		TimeReference: domain.TimeRefTomorrow, Recurring: true, RecurrenceType: domain.RecurrenceMonthly,
	}
	res := d.HandleAddCourse(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.False(t, res.Success)
	assert.Equal(t, domain.NotImplementedMonthly, res.Code)
}

func TestHandleAddCourseTimeConflict(t *testing.T) {
	store := newFakeStore()
	store.conflicts = true
	d := testDeps(store)
	s := domain.Slots{StudentName: "小明", CourseName: "鋼琴課", ScheduleTime: "15:00", TimeReference: domain.TimeRefTomorrow}
	res := d.HandleAddCourse(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.False(t, res.Success)
	assert.Equal(t, domain.TimeConflict, res.Code)
}

func TestHandleAddCourseConflictsWithRecurringTemplate(t *testing.T) {
	store := newFakeStore()
	_, err := store.Create(context.Background(), domain.Course{
		UserID: "u1", StudentName: "小華", CourseName: "游泳課",
		CourseDate: "2026-07-20", ScheduleTime: "15:00",
		IsRecurring: true, RecurrenceType: domain.RecurrenceDaily,
	})
	require.NoError(t, err)
	d := testDeps(store)
	s := domain.Slots{StudentName: "小明", CourseName: "鋼琴課", ScheduleTime: "15:00", TimeReference: domain.TimeRefTomorrow}
	res := d.HandleAddCourse(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.False(t, res.Success, "expected conflict against the expanded recurring template")
	assert.Equal(t, domain.TimeConflict, res.Code)
}

func TestHandleQueryScheduleEmpty(t *testing.T) {
	d := testDeps(newFakeStore())
	s := domain.Slots{StudentName: "小明", TimeReference: domain.TimeRefToday}
	res := d.HandleQuerySchedule(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.True(t, res.Success)
	assert.Equal(t, domain.QueryOKEmpty, res.Code)
}

func TestHandleQueryScheduleReturnsSortedResults(t *testing.T) {
	store := newFakeStore()
	d := testDeps(store)
	for _, cd := range []string{"2026-08-02", "2026-07-31"} {
		_, err := store.Create(context.Background(), domain.Course{
			UserID: "u1", StudentName: "小明", CourseName: "鋼琴課",
			CourseDate: cd, ScheduleTime: "15:00",
		})
		require.NoError(t, err)
	}
	s := domain.Slots{StudentName: "小明"}
	res := d.HandleQuerySchedule(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.True(t, res.Success)
	require.Equal(t, domain.QueryOK, res.Code)
	courses, ok := res.Data["courses"].([]domain.Course)
	require.True(t, ok)
	require.Len(t, courses, 2)
	assert.Equal(t, "2026-07-31", courses[0].CourseDate, "expected earliest date first")
}

func TestHandleModifyCourseNotFound(t *testing.T) {
	d := testDeps(newFakeStore())
	s := domain.Slots{StudentName: "小明", CourseName: "鋼琴課", ScheduleTime: "16:00"}
	res := d.HandleModifyCourse(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.False(t, res.Success)
	assert.Equal(t, domain.NotFound, res.Code)
}

func TestHandleModifyCourseSuccess(t *testing.T) {
	store := newFakeStore()
	d := testDeps(store)
	_, err := store.Create(context.Background(), domain.Course{
		UserID: "u1", StudentName: "小明", CourseName: "鋼琴課",
		CourseDate: "2026-08-01", ScheduleTime: "15:00",
	})
	require.NoError(t, err)
	s := domain.Slots{StudentName: "小明", CourseName: "鋼琴課", ScheduleTime: "16:00"}
	res := d.HandleModifyCourse(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.True(t, res.Success)
	assert.Equal(t, domain.ModifyOK, res.Code)
}

func TestHandleCancelCourseRecurringOffersOptions(t *testing.T) {
	store := newFakeStore()
	d := testDeps(store)
	_, err := store.Create(context.Background(), domain.Course{
		UserID: "u1", StudentName: "小明", CourseName: "鋼琴課",
		CourseDate: "2026-08-01", ScheduleTime: "15:00", IsRecurring: true, RecurrenceType: domain.RecurrenceWeekly,
	})
	require.NoError(t, err)
	s := domain.Slots{StudentName: "小明", CourseName: "鋼琴課"}
	res := d.HandleCancelCourse(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.True(t, res.Success)
	assert.Equal(t, domain.RecurringCancelOptions, res.Code)
	assert.NotNil(t, res.QuickReply)
}

func TestHandleCancelCourseSingleShot(t *testing.T) {
	store := newFakeStore()
	d := testDeps(store)
	_, err := store.Create(context.Background(), domain.Course{
		UserID: "u1", StudentName: "小明", CourseName: "鋼琴課",
		CourseDate: "2026-08-01", ScheduleTime: "15:00",
	})
	require.NoError(t, err)
	s := domain.Slots{StudentName: "小明", CourseName: "鋼琴課"}
	res := d.HandleCancelCourse(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.True(t, res.Success)
	assert.Equal(t, domain.CancelOK, res.Code)
}

func TestHandleSetReminderDefaultOffset(t *testing.T) {
	store := newFakeStore()
	d := testDeps(store)
	_, err := store.Create(context.Background(), domain.Course{
		UserID: "u1", StudentName: "小明", CourseName: "鋼琴課",
		CourseDate: "2026-07-31", ScheduleTime: "10:00",
	})
	require.NoError(t, err)
	s := domain.Slots{StudentName: "小明", CourseName: "鋼琴課"}
	res := d.HandleSetReminder(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	assert.True(t, res.Success)
}

func TestHandleSetReminderPastRejected(t *testing.T) {
	store := newFakeStore()
	d := testDeps(store)
	_, err := store.Create(context.Background(), domain.Course{
		UserID: "u1", StudentName: "小明", CourseName: "鋼琴課",
		CourseDate: "2026-07-31", ScheduleTime: "09:10",
	})
	require.NoError(t, err)
	s := domain.Slots{StudentName: "小明", CourseName: "鋼琴課"}
	res := d.HandleSetReminder(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.False(t, res.Success)
	assert.Equal(t, domain.PastReminderTime, res.Code)
}

func TestHandleRecordContentStrictModeRequiresCourse(t *testing.T) {
	d := testDeps(newFakeStore())
	s := domain.Slots{StudentName: "小明", CourseName: "鋼琴課", Content: "彈了拜爾"}
	res := d.HandleRecordContent(context.Background(), s, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.False(t, res.Success)
	assert.Equal(t, domain.NotFound, res.Code)
}

func TestHandleConfirmActionWithoutContext(t *testing.T) {
	d := testDeps(newFakeStore())
	res := d.HandleConfirmAction(context.Background(), domain.Slots{}, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.False(t, res.Success)
	assert.Equal(t, domain.UnknownHelp, res.Code)
}

func TestHandleConfirmActionReplaysLastAction(t *testing.T) {
	d := testDeps(newFakeStore())
	convCtx := domain.ConversationContext{
		LastActions: map[string]domain.ActionRecord{
			"add_course": {Intent: "add_course", Result: domain.TaskResult{Success: true, Code: domain.AddCourseOK}, TimestampUnixMs: 1000},
		},
	}
	res := d.HandleConfirmAction(context.Background(), domain.Slots{}, "u1", dispatcher.Event{}, convCtx)
	require.True(t, res.Success)
	assert.Equal(t, domain.AddCourseOK, res.Code)
}

func TestHandleActionVerbCancelAction(t *testing.T) {
	d := testDeps(newFakeStore())
	convCtx := domain.ConversationContext{
		LastActions: map[string]domain.ActionRecord{
			"add_course": {Intent: "add_course", Result: domain.TaskResult{Success: true, Code: domain.AddCourseOK}, TimestampUnixMs: 1000},
		},
	}
	res := d.HandleActionVerb(context.Background(), domain.Slots{}, "u1", dispatcher.Event{Intent: "cancel_action"}, convCtx)
	require.True(t, res.Success)
	assert.Equal(t, domain.CancelOK, res.Code)
}

func TestHandleActionVerbModifyActionWithoutContext(t *testing.T) {
	d := testDeps(newFakeStore())
	res := d.HandleActionVerb(context.Background(), domain.Slots{}, "u1", dispatcher.Event{Intent: "modify_action"}, domain.ConversationContext{})
	require.False(t, res.Success)
	assert.Equal(t, domain.UnknownHelp, res.Code)
}

func TestHandleUnknown(t *testing.T) {
	d := testDeps(newFakeStore())
	res := d.HandleUnknown(context.Background(), domain.Slots{}, "u1", dispatcher.Event{}, domain.ConversationContext{})
	require.True(t, res.Success)
	assert.Equal(t, domain.UnknownHelp, res.Code)
}
