package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coursebot/assistant/domain"
)

func TestMergePreservesNonNullBaseFields(t *testing.T) {
	base := domain.Slots{StudentName: "小明", CourseName: "數學課"}
	overlay := domain.Slots{StudentName: "小華", ScheduleTime: "14:00"}

	merged := Merge(base, overlay)
	assert.Equal(t, "小明", merged.StudentName, "base must win")
	assert.Equal(t, "數學課", merged.CourseName)
	assert.Equal(t, "14:00", merged.ScheduleTime, "overlay fills the gap")
}

func TestIsCompleteForIntentAddCourse(t *testing.T) {
	complete := domain.Slots{StudentName: "小明", CourseName: "數學課", ScheduleTime: "14:00"}
	assert.True(t, IsCompleteForIntent(complete, "add_course"))

	incomplete := domain.Slots{CourseName: "數學課", ScheduleTime: "14:00"}
	assert.False(t, IsCompleteForIntent(incomplete, "add_course"), "add_course without studentName should be incomplete")

	viaDayOfWeek := domain.Slots{StudentName: "小明", CourseName: "數學課", CourseDate: "2025-08-11", DayOfWeek: []int{1}}
	assert.True(t, IsCompleteForIntent(viaDayOfWeek, "add_course"), "courseDate+dayOfWeek satisfies the scheduleTime alternative")
}

func TestIsCompleteForIntentQuerySchedule(t *testing.T) {
	assert.True(t, IsCompleteForIntent(domain.Slots{StudentName: "小王"}, "query_schedule"), "studentName alone should satisfy query_schedule")
	assert.False(t, IsCompleteForIntent(domain.Slots{}, "query_schedule"), "empty slots should not satisfy query_schedule")
}

func TestMissingFieldsAddCourse(t *testing.T) {
	missing := MissingFields(domain.Slots{CourseName: "數學課", ScheduleTime: "15:00"}, "add_course")
	assert.Equal(t, []string{"studentName"}, missing)
}

func TestExtractRuleParsesStudentCourseAndTime(t *testing.T) {
	e := &Extractor{registry: nil, llm: nil, now: fixedNow}
	e.registry = testRegistry()
	s := e.ExtractRule("小明明天下午2點要上數學課", "add_course", domain.ConversationContext{})
	assert.Equal(t, "小明", s.StudentName)
	assert.Equal(t, "數學課", s.CourseName)
	assert.Equal(t, "14:00", s.ScheduleTime)
	assert.Equal(t, "2025-08-11", s.CourseDate)
}

func TestExtractRuleFlagsOutOfRangeHourAsInvalid(t *testing.T) {
	e := &Extractor{registry: testRegistry(), llm: nil, now: fixedNow}
	s := e.ExtractRule("小明明天25點上數學課", "add_course", domain.ConversationContext{})
	assert.True(t, s.TimeInvalid, "expected TimeInvalid for an out-of-range hour like 25點")
	assert.Empty(t, s.ScheduleTime, "ScheduleTime should stay empty when the hour is invalid")
}

func TestExtractRuleLeavesStudentNameEmptyWithoutAName(t *testing.T) {
	e := &Extractor{registry: testRegistry(), llm: nil, now: fixedNow}
	s := e.ExtractRule("明天下午3點要上數學課", "add_course", domain.ConversationContext{})
	assert.Empty(t, s.StudentName, "no name was given — studentRe must not capture a leftover time token like 點")
	assert.Equal(t, "數學課", s.CourseName)
	assert.Equal(t, "15:00", s.ScheduleTime)
}

func TestExtractRuleFillsPendingStudentNameFromBareReply(t *testing.T) {
	e := &Extractor{registry: testRegistry(), llm: nil, now: fixedNow}
	ctx := domain.ConversationContext{ExpectingInput: []string{domain.ExpectStudentName}}
	s := e.ExtractRule("小明", "add_course", ctx)
	assert.Equal(t, "小明", s.StudentName, "a bare name reply should fill the pending studentName slot")
}

func TestExtractRuleIgnoresBareReplyWithoutPendingStudentName(t *testing.T) {
	e := &Extractor{registry: testRegistry(), llm: nil, now: fixedNow}
	s := e.ExtractRule("小明", "add_course", domain.ConversationContext{})
	assert.Empty(t, s.StudentName, "a bare name should only fill studentName when it is the field being awaited")
}

func TestExtractRuleParsesStudentNameFromReminderPhrasing(t *testing.T) {
	e := &Extractor{registry: testRegistry(), llm: nil, now: fixedNow}
	s := e.ExtractRule("提醒我小明的物理課", "set_reminder", domain.ConversationContext{})
	assert.Equal(t, "小明", s.StudentName, "leading pronoun noise must not bleed into StudentName")
	assert.Equal(t, "物理課", s.CourseName)
}
