package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursebot/assistant/config"
	"github.com/coursebot/assistant/domain"
)

func testRegistry() *config.Registry {
	return config.NewRegistry(config.Config{}, nil)
}

func TestRenderAddCourseOK(t *testing.T) {
	r := New(testRegistry())
	result := domain.TaskResult{
		Success: true, Code: domain.AddCourseOK,
		Data: map[string]any{"studentName": "小明", "courseName": "鋼琴課", "courseDate": "2026-08-01", "scheduleTime": "15:00"},
	}
	msg := r.Render("add_course", domain.Slots{}, result)
	assert.Contains(t, msg.Text, "小明")
	assert.Contains(t, msg.Text, "鋼琴課")
	require.NotNil(t, msg.QuickReply)
	assert.Len(t, msg.QuickReply.Items, 2)
}

func TestRenderMissingFields(t *testing.T) {
	r := New(testRegistry())
	result := domain.TaskResult{Success: false, Code: domain.MissingFields, MissingFields: []string{"studentName", "scheduleTime"}}
	msg := r.Render("add_course", domain.Slots{}, result)
	assert.Contains(t, msg.Text, "學生姓名")
	assert.Contains(t, msg.Text, "上課時間")
	assert.Nil(t, msg.QuickReply, "no quick reply on failure")
}

func TestRenderQueryScheduleEmpty(t *testing.T) {
	r := New(testRegistry())
	result := domain.TaskResult{Success: true, Code: domain.QueryOKEmpty, Data: map[string]any{}}
	msg := r.Render("query_schedule", domain.Slots{StudentName: "小王", TimeReference: domain.TimeRefToday}, result)
	assert.Contains(t, msg.Text, "沒有安排課程")
	assert.Contains(t, msg.Text, "小王", "expected subject substitution")
}

func TestRenderQueryScheduleResults(t *testing.T) {
	r := New(testRegistry())
	courses := []domain.Course{
		{CourseDate: "2026-08-01", ScheduleTime: "15:00", StudentName: "小明", CourseName: "鋼琴課"},
	}
	result := domain.TaskResult{Success: true, Code: domain.QueryOK, Data: map[string]any{"courses": courses}}
	msg := r.Render("query_schedule", domain.Slots{}, result)
	assert.Contains(t, msg.Text, "鋼琴課")
	assert.Nil(t, msg.QuickReply, "query_schedule should have no quick reply")
}

func TestRenderCancelCourseQuickReply(t *testing.T) {
	r := New(testRegistry())
	result := domain.TaskResult{Success: true, Code: domain.CancelOK, Data: map[string]any{"courseName": "鋼琴課", "courseDate": "2026-08-01"}}
	msg := r.Render("cancel_course", domain.Slots{}, result)
	require.NotNil(t, msg.QuickReply)
	require.NotEmpty(t, msg.QuickReply.Items)
	assert.Equal(t, "確認刪除", msg.QuickReply.Items[0].Label)
}

func TestRenderUnknownHasNoQuickReply(t *testing.T) {
	r := New(testRegistry())
	result := domain.TaskResult{Success: true, Code: domain.UnknownHelp}
	msg := r.Render("unknown", domain.Slots{}, result)
	assert.Nil(t, msg.QuickReply)
	assert.Contains(t, msg.Text, "數學課", "expected example menu text")
}

func TestRenderRecurringCancelOptionsUsesResultQuickReply(t *testing.T) {
	r := New(testRegistry())
	result := domain.TaskResult{
		Success: true, Code: domain.RecurringCancelOptions,
		Data: map[string]any{"courseName": "鋼琴課"},
		QuickReply: &domain.QuickReply{Items: []domain.QuickReplyItem{
			{Label: "只取消今天", Data: "cancel_scope=today"},
			{Label: "今天起全部取消", Data: "cancel_scope=forward"},
			{Label: "取消整個系列", Data: "cancel_scope=series"},
		}},
	}
	msg := r.Render("cancel_course", domain.Slots{}, result)
	require.NotNil(t, msg.QuickReply)
	assert.Len(t, msg.QuickReply.Items, 3, "expected handler-supplied 3-item quick reply")
}
