package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coursebot/assistant/config"
	"github.com/coursebot/assistant/course"
	"github.com/coursebot/assistant/dispatcher"
	"github.com/coursebot/assistant/domain"
	"github.com/coursebot/assistant/slots"
)

// Deps bundles the TaskHandlers' external collaborators: CourseStore,
// CalendarSync, and the ConfigRegistry's feature flags. Every handler is
// a method on Deps, matching dispatcher.Handler.
type Deps struct {
	Courses  course.Store
	Calendar course.CalendarSync
	Registry *config.Registry
	Now      func() time.Time
}

func New(courses course.Store, calendar course.CalendarSync, registry *config.Registry) *Deps {
	return &Deps{Courses: courses, Calendar: calendar, Registry: registry, Now: time.Now}
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func missingFieldsResult(intent string, s domain.Slots) domain.TaskResult {
	missing := slots.MissingFields(s, intent)
	return domain.TaskResult{
		Success:       false,
		Code:          domain.MissingFields,
		MissingFields: missing,
		Data:          map[string]any{"missingFields": missing},
	}
}

// HandleAddCourse implements handleAddCourse for both add_course and
// create_recurring_course (they differ only in slots.Recurring).
func (d *Deps) HandleAddCourse(ctx context.Context, s domain.Slots, userID string, event dispatcher.Event, convCtx domain.ConversationContext) domain.TaskResult {
	intent := "add_course"
	if s.Recurring {
		intent = "create_recurring_course"
	}
	if s.TimeInvalid {
		return domain.TaskResult{Success: false, Code: domain.InvalidTime}
	}
	if !slots.IsCompleteForIntent(s, intent) {
		return missingFieldsResult(intent, s)
	}

	courseDate := resolveDate(s.TimeReference, s.CourseDate, d.now())
	if anchor, err := time.ParseInLocation("2006-01-02", courseDate, time.Local); err == nil {
		if anchor.Before(dayStart(d.now())) {
			return domain.TaskResult{Success: false, Code: domain.InvalidPastTime}
		}
	} else {
		return domain.TaskResult{Success: false, Code: domain.InvalidTime}
	}

	if s.Recurring && s.RecurrenceType == domain.RecurrenceMonthly {
		logrus.WithField("userId", userID).Info("[TASKS] monthly recurrence not expanded")
		return domain.TaskResult{Success: false, Code: domain.NotImplementedMonthly}
	}

	conflicts, err := d.Courses.CheckTimeConflicts(ctx, userID, courseDate, s.ScheduleTime, "")
	if err != nil {
		logrus.WithError(err).Error("[TASKS] checkTimeConflicts failed")
		return domain.TaskResult{Success: false, Code: domain.TempUnavailable}
	}
	if len(conflicts) > 0 {
		return domain.TaskResult{
			Success: false,
			Code:    domain.TimeConflict,
			Data:    map[string]any{"courseDate": courseDate, "scheduleTime": s.ScheduleTime, "conflicts": conflicts},
		}
	}
	if recurConflict, err := d.conflictsWithRecurringTemplates(ctx, userID, courseDate, s.ScheduleTime); err == nil && recurConflict {
		return domain.TaskResult{
			Success: false,
			Code:    domain.TimeConflict,
			Data:    map[string]any{"courseDate": courseDate, "scheduleTime": s.ScheduleTime},
		}
	}

	if _, err := d.Courses.GetOrCreateParent(ctx, userID); err != nil {
		logrus.WithError(err).Warn("[TASKS] getOrCreateParent failed, continuing")
	}

	c := domain.Course{
		UserID:         userID,
		StudentName:    s.StudentName,
		CourseName:     s.CourseName,
		CourseDate:     courseDate,
		ScheduleTime:   s.ScheduleTime,
		IsRecurring:    s.Recurring,
		RecurrenceType: s.RecurrenceType,
		DayOfWeek:      s.DayOfWeek,
		Location:       s.Location,
		Teacher:        s.Teacher,
		Status:         domain.CourseStatusScheduled,
	}
	created, err := d.Courses.Create(ctx, c)
	if err != nil {
		logrus.WithError(err).Error("[TASKS] create course failed")
		return domain.TaskResult{Success: false, Code: domain.TempUnavailable}
	}

	if d.Calendar != nil {
		if eventID, err := d.Calendar.CreateEvent(ctx, created); err != nil {
			logrus.WithError(err).Warn("[TASKS] calendar sync failed, course still persisted")
		} else if _, updErr := d.Courses.Update(ctx, created.ID, course.Patch{CalendarEventID: &eventID}); updErr == nil {
			created.CalendarEventID = eventID
		}
	}

	return domain.TaskResult{
		Success: true,
		Code:    domain.AddCourseOK,
		Data: map[string]any{
			"studentName": s.StudentName, "courseName": s.CourseName,
			"courseDate": courseDate, "scheduleTime": s.ScheduleTime,
		},
	}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// conflictsWithRecurringTemplates logically expands every recurring course
// template for userID over courseDate, per §4.7's "expand recurring
// templates over the target date range" instruction for conflict checking —
// CheckTimeConflicts alone only ever sees single-shot rows.
func (d *Deps) conflictsWithRecurringTemplates(ctx context.Context, userID, courseDate, scheduleTime string) (bool, error) {
	anchor, err := time.ParseInLocation("2006-01-02", courseDate, time.Local)
	if err != nil {
		return false, err
	}
	rows, err := d.Courses.GetCoursesByStudent(ctx, userID, "", &course.DateRange{Start: anchor, End: endOfDay(anchor)})
	if err != nil {
		return false, err
	}
	for _, tmpl := range rows {
		if !tmpl.IsRecurring || tmpl.ScheduleTime != scheduleTime {
			continue
		}
		occurrences, err := expandOccurrences(tmpl, anchor, endOfDay(anchor))
		if err != nil {
			continue
		}
		if len(occurrences) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// HandleQuerySchedule implements handleQuerySchedule.
func (d *Deps) HandleQuerySchedule(ctx context.Context, s domain.Slots, userID string, event dispatcher.Event, convCtx domain.ConversationContext) domain.TaskResult {
	now := d.now()
	start, end := resolveRange(s.TimeReference, s.CourseDate, now)

	rows, err := d.Courses.GetCoursesByStudent(ctx, userID, s.StudentName, &course.DateRange{Start: start, End: end})
	if err != nil {
		logrus.WithError(err).Error("[TASKS] getCoursesByStudent failed")
		return domain.TaskResult{Success: false, Code: domain.TempUnavailable}
	}

	var results []domain.Course
	seen := map[string]bool{}
	for _, c := range rows {
		if !matchesFilter(c, s) {
			continue
		}
		if c.IsRecurring {
			continue // templates are expanded separately below
		}
		key := dedupeKey(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		results = append(results, c)
	}

	for _, tmpl := range rows {
		if !tmpl.IsRecurring || !matchesFilter(tmpl, s) {
			continue
		}
		occurrences, err := expandOccurrences(tmpl, start, end)
		if err != nil {
			continue
		}
		for _, occ := range occurrences {
			c := tmpl
			c.CourseDate = occ.Format("2006-01-02")
			key := dedupeKey(c)
			if seen[key] {
				continue
			}
			seen[key] = true
			results = append(results, c)
		}
	}

	sortCourses(results)

	if len(results) == 0 {
		return domain.TaskResult{
			Success: true,
			Code:    domain.QueryOKEmpty,
			Data:    map[string]any{"studentName": s.StudentName, "timeReference": string(s.TimeReference)},
		}
	}
	return domain.TaskResult{
		Success: true,
		Code:    domain.QueryOK,
		Data:    map[string]any{"courses": results, "studentName": s.StudentName},
	}
}

func matchesFilter(c domain.Course, s domain.Slots) bool {
	if s.StudentName != "" && !strings.Contains(c.StudentName, s.StudentName) && !strings.Contains(s.StudentName, c.StudentName) {
		return false
	}
	if s.CourseName != "" && !courseNameMatches(c.CourseName, s.CourseName) {
		return false
	}
	return true
}

func courseNameMatches(stored, wanted string) bool {
	a := strings.TrimSuffix(stored, "課")
	b := strings.TrimSuffix(wanted, "課")
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func dedupeKey(c domain.Course) string {
	return fmt.Sprintf("%s|%s|%s|%s", c.StudentName, c.CourseDate, c.ScheduleTime, c.CourseName)
}

func sortCourses(cs []domain.Course) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && lessCourse(cs[j], cs[j-1]); j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

func lessCourse(a, b domain.Course) bool {
	if a.CourseDate != b.CourseDate {
		return a.CourseDate < b.CourseDate
	}
	return a.ScheduleTime < b.ScheduleTime
}

// HandleModifyCourse implements handleModifyCourse.
func (d *Deps) HandleModifyCourse(ctx context.Context, s domain.Slots, userID string, event dispatcher.Event, convCtx domain.ConversationContext) domain.TaskResult {
	if s.StudentName == "" || s.CourseName == "" {
		return missingFieldsResult("modify_course", s)
	}

	existing, err := d.Courses.FindCourse(ctx, userID, s.StudentName, s.CourseName, s.CourseDate)
	if err != nil {
		logrus.WithError(err).Error("[TASKS] findCourse failed")
		return domain.TaskResult{Success: false, Code: domain.TempUnavailable}
	}
	if existing == nil {
		return domain.TaskResult{Success: false, Code: domain.NotFound}
	}

	patch := course.Patch{}
	changes := []string{}
	newDate := existing.CourseDate
	newTime := existing.ScheduleTime

	if s.CourseDate != "" && s.CourseDate != existing.CourseDate {
		newDate = s.CourseDate
		patch.CourseDate = &newDate
		changes = append(changes, "日期改為 "+newDate)
	}
	if s.ScheduleTime != "" && s.ScheduleTime != existing.ScheduleTime {
		newTime = s.ScheduleTime
		patch.ScheduleTime = &newTime
		changes = append(changes, "時間改為 "+newTime)
	}
	if s.Location != "" && s.Location != existing.Location {
		loc := s.Location
		patch.Location = &loc
		changes = append(changes, "地點改為 "+loc)
	}
	if s.Teacher != "" && s.Teacher != existing.Teacher {
		teacher := s.Teacher
		patch.Teacher = &teacher
		changes = append(changes, "老師改為 "+teacher)
	}

	if len(changes) == 0 {
		return domain.TaskResult{Success: false, Code: domain.InvalidTime}
	}

	conflicts, err := d.Courses.CheckTimeConflicts(ctx, userID, newDate, newTime, existing.ID)
	if err != nil {
		return domain.TaskResult{Success: false, Code: domain.TempUnavailable}
	}
	if len(conflicts) > 0 {
		return domain.TaskResult{Success: false, Code: domain.TimeConflict, Data: map[string]any{"courseDate": newDate, "scheduleTime": newTime}}
	}

	updated, err := d.Courses.Update(ctx, existing.ID, patch)
	if err != nil {
		return domain.TaskResult{Success: false, Code: domain.TempUnavailable}
	}
	if d.Calendar != nil && updated.CalendarEventID != "" {
		if err := d.Calendar.UpdateEvent(ctx, updated.CalendarEventID, updated); err != nil {
			logrus.WithError(err).Warn("[TASKS] calendar update failed, course still updated")
		}
	}

	return domain.TaskResult{
		Success: true,
		Code:    domain.ModifyOK,
		Data:    map[string]any{"courseName": updated.CourseName, "changes": strings.Join(changes, "、")},
	}
}

// HandleCancelCourse implements handleCancelCourse.
func (d *Deps) HandleCancelCourse(ctx context.Context, s domain.Slots, userID string, event dispatcher.Event, convCtx domain.ConversationContext) domain.TaskResult {
	if s.StudentName == "" || s.CourseName == "" {
		return missingFieldsResult("cancel_course", s)
	}

	existing, err := d.Courses.FindCourse(ctx, userID, s.StudentName, s.CourseName, s.CourseDate)
	if err != nil {
		return domain.TaskResult{Success: false, Code: domain.TempUnavailable}
	}
	if existing == nil {
		return domain.TaskResult{Success: false, Code: domain.NotFound}
	}

	if existing.IsRecurring {
		return domain.TaskResult{
			Success: true,
			Code:    domain.RecurringCancelOptions,
			Data:    map[string]any{"courseName": existing.CourseName},
			QuickReply: &domain.QuickReply{Items: []domain.QuickReplyItem{
				{Label: "只取消今天", Data: "cancel_scope=today"},
				{Label: "今天起全部取消", Data: "cancel_scope=forward"},
				{Label: "取消整個系列", Data: "cancel_scope=series"},
			}},
		}
	}

	cancelled := true
	status := domain.CourseStatusCancelled
	if _, err := d.Courses.Update(ctx, existing.ID, course.Patch{Cancelled: &cancelled, Status: &status}); err != nil {
		return domain.TaskResult{Success: false, Code: domain.TempUnavailable}
	}
	if d.Calendar != nil && existing.CalendarEventID != "" {
		if err := d.Calendar.DeleteEvent(ctx, existing.CalendarEventID); err != nil {
			logrus.WithError(err).Warn("[TASKS] calendar delete failed, course still cancelled")
		}
	}

	return domain.TaskResult{
		Success: true,
		Code:    domain.CancelOK,
		Data:    map[string]any{"courseName": existing.CourseName, "courseDate": existing.CourseDate},
	}
}

// HandleSetReminder implements handleSetReminder.
func (d *Deps) HandleSetReminder(ctx context.Context, s domain.Slots, userID string, event dispatcher.Event, convCtx domain.ConversationContext) domain.TaskResult {
	if s.StudentName == "" || s.CourseName == "" {
		return missingFieldsResult("set_reminder", s)
	}

	existing, err := d.Courses.FindCourse(ctx, userID, s.StudentName, s.CourseName, s.CourseDate)
	if err != nil {
		return domain.TaskResult{Success: false, Code: domain.TempUnavailable}
	}
	if existing == nil {
		return domain.TaskResult{Success: false, Code: domain.NotFound}
	}

	offsetMinutes := 30
	if s.ReminderTime != nil {
		offsetMinutes = *s.ReminderTime
	}

	courseAt, err := courseDateTime(existing.CourseDate, existing.ScheduleTime)
	if err != nil {
		return domain.TaskResult{Success: false, Code: domain.InvalidTime}
	}
	reminderAt := courseAt.Add(-time.Duration(offsetMinutes) * time.Minute)
	if reminderAt.Before(d.now()) {
		return domain.TaskResult{Success: false, Code: domain.PastReminderTime}
	}

	return domain.TaskResult{
		Success: true,
		Code:    domain.AddCourseOK,
		Data:    map[string]any{"courseName": existing.CourseName, "reminderTime": offsetMinutes},
	}
}

// HandleRecordContent implements handleRecordContent for record_content
// and add_course_content.
func (d *Deps) HandleRecordContent(ctx context.Context, s domain.Slots, userID string, event dispatcher.Event, convCtx domain.ConversationContext) domain.TaskResult {
	if s.StudentName == "" || s.CourseName == "" {
		return missingFieldsResult("record_content", s)
	}

	courseDate := resolveDate(s.TimeReference, s.CourseDate, d.now())
	existing, err := d.Courses.FindCourse(ctx, userID, s.StudentName, s.CourseName, courseDate)
	if err != nil {
		return domain.TaskResult{Success: false, Code: domain.TempUnavailable}
	}
	if existing == nil {
		if d.Registry.Flags().StrictRecordRequiresCourse {
			return domain.TaskResult{Success: false, Code: domain.NotFound}
		}
	}

	content := s.Content
	if content == "" && s.ImageRef != "" {
		content = "圖片記錄 " + s.ImageRef
	}

	data := map[string]any{"studentName": s.StudentName, "courseName": s.CourseName, "content": content}
	return domain.TaskResult{Success: true, Code: domain.AddCourseOK, Data: data}
}

// HandleConfirmAction implements handleConfirmAction.
func (d *Deps) HandleConfirmAction(ctx context.Context, s domain.Slots, userID string, event dispatcher.Event, convCtx domain.ConversationContext) domain.TaskResult {
	action, ok := mostRecentAction(convCtx)
	if !ok {
		return domain.TaskResult{Success: false, Code: domain.UnknownHelp}
	}
	return action.Result
}

// HandleActionVerb implements handleActionVerb for modify_action,
// cancel_action, and restart_input, branching on event.Intent.
func (d *Deps) HandleActionVerb(ctx context.Context, s domain.Slots, userID string, event dispatcher.Event, convCtx domain.ConversationContext) domain.TaskResult {
	action, hasAction := mostRecentAction(convCtx)

	switch event.Intent {
	case "cancel_action":
		if !hasAction {
			return domain.TaskResult{Success: false, Code: domain.UnknownHelp}
		}
		return domain.TaskResult{Success: true, Code: domain.CancelOK, Data: map[string]any{"intent": action.Intent}}
	case "restart_input":
		return domain.TaskResult{Success: true, Code: domain.UnknownHelp}
	default: // modify_action
		if !hasAction {
			return domain.TaskResult{Success: false, Code: domain.UnknownHelp}
		}
		return domain.TaskResult{Success: false, Code: domain.MissingFields, Data: map[string]any{"intent": action.Intent}}
	}
}

// HandleUnknown implements handleUnknown.
func (d *Deps) HandleUnknown(ctx context.Context, s domain.Slots, userID string, event dispatcher.Event, convCtx domain.ConversationContext) domain.TaskResult {
	return domain.TaskResult{Success: true, Code: domain.UnknownHelp}
}

func mostRecentAction(convCtx domain.ConversationContext) (domain.ActionRecord, bool) {
	var best domain.ActionRecord
	found := false
	for _, a := range convCtx.LastActions {
		if !found || a.TimestampUnixMs > best.TimestampUnixMs {
			best = a
			found = true
		}
	}
	return best, found
}

// Handlers returns the named handler map dispatcher.RegisterDefaults expects.
func (d *Deps) Handlers() map[string]dispatcher.Handler {
	return map[string]dispatcher.Handler{
		"handleAddCourse":     d.HandleAddCourse,
		"handleModifyCourse":  d.HandleModifyCourse,
		"handleCancelCourse":  d.HandleCancelCourse,
		"handleQuerySchedule": d.HandleQuerySchedule,
		"handleRecordContent": d.HandleRecordContent,
		"handleSetReminder":   d.HandleSetReminder,
		"handleConfirmAction": d.HandleConfirmAction,
		"handleActionVerb":    d.HandleActionVerb,
	}
}
