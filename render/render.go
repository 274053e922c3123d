// Package render builds the final outbound Message from (intent, slots,
// taskResult), per §4.8: template lookup with slot substitution, the
// query-schedule empty-state special case, and the fixed quick-reply map.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/coursebot/assistant/config"
	"github.com/coursebot/assistant/domain"
	"github.com/coursebot/assistant/messaging"
)

// quickReplyTable is the fixed intent->buttons map; intents absent from
// this table get no quick reply.
var quickReplyTable = map[string][]messaging.QuickReplyAction{
	"add_course":              {{Label: "確認", Data: "action=confirm"}, {Label: "取消操作", Data: "action=cancel"}},
	"create_recurring_course": {{Label: "確認", Data: "action=confirm"}, {Label: "取消操作", Data: "action=cancel"}},
	"set_reminder":            {{Label: "確認", Data: "action=confirm"}, {Label: "取消操作", Data: "action=cancel"}},
	"record_content":          {{Label: "確認", Data: "action=confirm"}, {Label: "取消操作", Data: "action=cancel"}},
	"add_course_content":      {{Label: "確認", Data: "action=confirm"}, {Label: "取消操作", Data: "action=cancel"}},
	"cancel_course":           {{Label: "確認刪除", Data: "action=confirm_delete"}, {Label: "取消操作", Data: "action=cancel"}},
	"stop_recurring_course":   {{Label: "確認刪除", Data: "action=confirm_delete"}, {Label: "取消操作", Data: "action=cancel"}},
}

// Renderer turns a handler's TaskResult into the Message the webhook hands
// MessagingClient.Reply.
type Renderer struct {
	registry *config.Registry
}

func New(registry *config.Registry) *Renderer {
	return &Renderer{registry: registry}
}

// Render implements §4.8's three-way branch.
func (r *Renderer) Render(intent string, slots domain.Slots, result domain.TaskResult) messaging.Message {
	text := r.renderText(intent, slots, result)
	qr := r.renderQuickReply(intent, result)
	return messaging.Message{Text: text, QuickReply: qr}
}

func (r *Renderer) renderText(intent string, slots domain.Slots, result domain.TaskResult) string {
	if !result.Success {
		return r.renderFailure(slots, result)
	}
	if intent == "query_schedule" && (result.Code == domain.QueryOKEmpty || len(result.Data) == 0) {
		return r.renderQueryEmpty(slots, result)
	}
	if intent == "query_schedule" && result.Code == domain.QueryOK {
		return r.renderQueryResults(result)
	}
	if result.Message != "" {
		return result.Message
	}
	return r.substitute(r.registry.Template(string(result.Code)), result.Data)
}

func (r *Renderer) renderFailure(slots domain.Slots, result domain.TaskResult) string {
	if result.Message != "" {
		return result.Message
	}
	if result.Code == domain.MissingFields {
		return r.renderMissingFields(result)
	}
	return r.substitute(r.registry.Template(string(result.Code)), result.Data)
}

func (r *Renderer) renderMissingFields(result domain.TaskResult) string {
	labels := map[string]string{
		"studentName":  "學生姓名",
		"courseName":   "課程名稱",
		"scheduleTime": "上課時間",
	}
	parts := make([]string, 0, len(result.MissingFields))
	for _, f := range result.MissingFields {
		if label, ok := labels[f]; ok {
			parts = append(parts, label)
		} else {
			parts = append(parts, f)
		}
	}
	tmpl := r.registry.Template(string(domain.MissingFields))
	return strings.ReplaceAll(tmpl, "{missingFieldsText}", strings.Join(parts, "、"))
}

func (r *Renderer) renderQueryEmpty(slots domain.Slots, result domain.TaskResult) string {
	subject := slots.StudentName
	if subject == "" {
		subject = "全部"
	}
	dateDescription := r.registry.DateDescription(string(slots.TimeReference))
	main := r.registry.Template("QUERY_EMPTY_TEMPLATE")
	main = strings.ReplaceAll(main, "{subject}", subject)
	main = strings.ReplaceAll(main, "{dateDescription}", dateDescription)
	guidance := r.registry.Template("QUERY_EMPTY_GUIDANCE")
	return main + "\n" + guidance
}

func (r *Renderer) renderQueryResults(result domain.TaskResult) string {
	courses, _ := result.Data["courses"].([]domain.Course)
	var lines []string
	lines = append(lines, "📅 課表：")
	for _, c := range courses {
		line := fmt.Sprintf("・%s %s %s「%s」", c.CourseDate, c.ScheduleTime, c.StudentName, c.CourseName)
		if c.Location != "" {
			line += " @" + c.Location
		}
		if rel, ok := relativeCourseTime(c); ok {
			line += fmt.Sprintf(" (%s)", rel)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// relativeCourseTime renders a course's date+time as a humanize.Time
// phrase, used as a quick at-a-glance cue alongside the absolute date.
func relativeCourseTime(c domain.Course) (string, bool) {
	t, err := time.ParseInLocation("2006-01-02 15:04", c.CourseDate+" "+c.ScheduleTime, time.Local)
	if err != nil {
		return "", false
	}
	return humanize.Time(t), true
}

func (r *Renderer) renderQuickReply(intent string, result domain.TaskResult) *messaging.QuickReply {
	if result.QuickReply != nil {
		items := make([]messaging.QuickReplyAction, len(result.QuickReply.Items))
		for i, it := range result.QuickReply.Items {
			items[i] = messaging.QuickReplyAction{Label: it.Label, Data: it.Data}
		}
		return messaging.NormalizeQuickReply(&messaging.QuickReply{Items: items})
	}
	if !result.Success {
		return nil
	}
	actions, ok := quickReplyTable[intent]
	if !ok {
		return nil
	}
	return messaging.NormalizeQuickReply(&messaging.QuickReply{Items: actions})
}

func (r *Renderer) substitute(tmpl string, data map[string]any) string {
	if tmpl == "" {
		return ""
	}
	out := tmpl
	for k, v := range data {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprint(v))
	}
	return out
}
