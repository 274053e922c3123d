// Package slots extracts typed fields from an utterance: a deterministic
// regex/keyword pass, optionally enhanced — never replaced — by the LLM
// when the rule pass looks thin.
package slots

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/coursebot/assistant/config"
	"github.com/coursebot/assistant/domain"
	"github.com/coursebot/assistant/llmclient"
	"github.com/coursebot/assistant/timeparser"
)

// Extractor implements the SlotExtractor contract.
type Extractor struct {
	registry *config.Registry
	llm      llmclient.Client
	now      func() time.Time
}

func New(registry *config.Registry, llm llmclient.Client) *Extractor {
	return &Extractor{registry: registry, llm: llm, now: time.Now}
}

var (
	// studentRe requires at least two Han characters so a single leftover
	// time-unit token (e.g. "點") can never pass as a name on its own.
	studentRe  = regexp.MustCompile(`([\p{Han}]{2,4}(?:同學|小朋友)?)(?:的|要上|今天|明天|後天)`)
	courseRe   = regexp.MustCompile(`([\p{Han}]{1,6}課)`)
	locationRe = regexp.MustCompile(`在([\p{Han}a-zA-Z0-9]{1,10}(?:教室|館|中心))`)
	teacherRe  = regexp.MustCompile(`([\p{Han}]{1,4})老師`)
	dailyRe    = regexp.MustCompile(`每天|每日`)
	weeklyRe   = regexp.MustCompile(`每週|每周|每星期|每个星期`)
	monthlyRe  = regexp.MustCompile(`每月`)
	weekdayRe  = regexp.MustCompile(`(?:週|周|星期)([一二三四五六日天])`)
	bareNameRe = regexp.MustCompile(`^[\p{Han}]{2,4}(?:同學|小朋友)?$`)
)

var weekdayIndex = map[string]int{
	"日": 0, "天": 0, "一": 1, "二": 2, "三": 3, "四": 4, "五": 5, "六": 6,
}

// studentNameLeadingNoise are pronoun/verb fillers that commonly open an
// utterance ahead of the actual name ("提醒我小明的物理課") — stripped from
// the front of the text before studentRe runs so they can't get captured
// along with the name.
var studentNameLeadingNoise = []string{
	"提醒我", "提醒", "請幫我", "請", "幫我", "麻煩", "查詢一下", "查詢", "看一下",
	"幫忙", "取消", "刪除", "刪掉",
}

// courseNameNoise are verb/time/particle tokens that commonly sit directly
// in front of a course name. extractCourseName cuts away everything up to
// and including the last one of these found before 課, so CourseName ends
// up holding just the name rather than "明天下午2點要上數學課".
var courseNameNoise = []string{
	"要上", "安排", "新增", "修改", "更改", "改到", "改成", "換到", "換成",
	"取消", "刪除", "刪掉", "提醒", "記錄", "紀錄", "備註", "補充", "追加內容",
	"今天", "明天", "後天", "昨天", "今日", "明日", "前天",
	"每天", "每日", "每週", "每周", "每星期", "每个星期", "每月",
	"上午", "中午", "下午", "晚上", "點", "半", "分", "的",
}

func trimLeadingNoise(text string, tokens []string) string {
	for changed := true; changed; {
		changed = false
		for _, tok := range tokens {
			if strings.HasPrefix(text, tok) {
				text = text[len(tok):]
				changed = true
			}
		}
	}
	return text
}

// extractStudentName matches studentRe against the text with leading
// pronoun/verb noise stripped, so "提醒我小明的物理課" yields "小明" rather
// than "醒我小明".
func extractStudentName(text string) string {
	trimmed := trimLeadingNoise(text, studentNameLeadingNoise)
	if m := studentRe.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return ""
}

// extractBareName recognizes a standalone name reply with no trailing
// particle at all (e.g. the bare "小明" that answers a studentName
// follow-up prompt), since studentRe by design never matches without one.
func extractBareName(text string) string {
	trimmed := strings.TrimSpace(text)
	if bareNameRe.MatchString(trimmed) {
		return trimmed
	}
	return ""
}

func expecting(ctx domain.ConversationContext, tag string) bool {
	for _, t := range ctx.ExpectingInput {
		if t == tag {
			return true
		}
	}
	return false
}

// extractCourseName locates the course name ending in 課, cutting away any
// leading verb/time/particle noise so CourseName captures just the name
// itself instead of everything back to the previous clause.
func extractCourseName(text string) string {
	idx := strings.LastIndex(text, "課")
	if idx < 0 {
		return ""
	}
	head := text[:idx]
	cut := 0
	for _, tok := range courseNameNoise {
		if at := strings.LastIndex(head, tok); at >= 0 {
			if end := at + len(tok); end > cut {
				cut = end
			}
		}
	}
	name := head[cut:]
	if m := courseRe.FindStringSubmatch(name + "課"); m != nil {
		return m[1]
	}
	return ""
}

// ExtractRule runs the unified entity pass once per request: student,
// course, location, teacher and time tokens, without any LLM call.
func (e *Extractor) ExtractRule(text string, intent string, ctx domain.ConversationContext) domain.Slots {
	var s domain.Slots

	if name := extractStudentName(text); name != "" {
		s.StudentName = name
	} else if expecting(ctx, domain.ExpectStudentName) {
		s.StudentName = extractBareName(text)
	}
	if name := extractCourseName(text); name != "" {
		s.CourseName = name
	}
	if m := locationRe.FindStringSubmatch(text); m != nil {
		s.Location = m[1]
	}
	if m := teacherRe.FindStringSubmatch(text); m != nil {
		s.Teacher = m[1]
	}

	ref := e.now()
	if parsed, err := timeparser.Parse(text, ref, timeparser.DefaultTimezone); err == nil && parsed != nil {
		info := timeparser.CreateTimeInfo(*parsed)
		s.CourseDate = info.Date
		if comp, ok := timeparser.ParseTimeComponent(text); ok && comp.Hour != nil {
			s.ScheduleTime = formatHHMM(*comp.Hour, comp.Minute)
		}
		s.TimeReference = relativeTokenFromText(text)
	} else if err != nil {
		// A time-of-day token was present but out of range (e.g. "25點") —
		// surface it as an explicit invalid-time signal instead of silently
		// leaving ScheduleTime/CourseDate unset, which would otherwise read
		// as "no time given at all".
		s.TimeInvalid = true
	}

	flags := e.registry.Flags()
	switch {
	case dailyRe.MatchString(text) && flags.EnableRecurringCourses:
		s.Recurring = true
		s.RecurrenceType = domain.RecurrenceDaily
	case weeklyRe.MatchString(text) && flags.EnableRecurringCourses:
		s.Recurring = true
		s.RecurrenceType = domain.RecurrenceWeekly
		if m := weekdayRe.FindStringSubmatch(text); m != nil {
			if d, ok := weekdayIndex[m[1]]; ok {
				s.DayOfWeek = []int{d}
			}
		}
	case monthlyRe.MatchString(text) && flags.EnableRecurringCourses:
		s.Recurring = true
		s.RecurrenceType = domain.RecurrenceMonthly
	}

	if intent == "query_schedule" && s.StudentName == "" {
		if candidates := findStudentCandidates(text); len(candidates) > 1 {
			s.StudentCandidates = candidates
		}
	}

	return s
}

func formatHHMM(hour, minute int) string {
	return pad2(hour) + ":" + pad2(minute)
}

func pad2(n int) string {
	s := strconv.Itoa(n)
	if len(s) < 2 {
		return "0" + s
	}
	return s
}

var relativeTokens = []struct {
	token string
	ref   domain.TimeReference
}{
	{"今天", domain.TimeRefToday}, {"今日", domain.TimeRefToday},
	{"明天", domain.TimeRefTomorrow}, {"明日", domain.TimeRefTomorrow},
	{"後天", domain.TimeRefDayAfterTomorrow},
	{"昨天", domain.TimeRefYesterday}, {"昨日", domain.TimeRefYesterday},
	{"這週", domain.TimeRefThisWeek}, {"本週", domain.TimeRefThisWeek},
	{"下週", domain.TimeRefNextWeek}, {"下周", domain.TimeRefNextWeek},
	{"上週", domain.TimeRefLastWeek}, {"上周", domain.TimeRefLastWeek},
}

func relativeTokenFromText(text string) domain.TimeReference {
	for _, rt := range relativeTokens {
		if strings.Contains(text, rt.token) {
			return rt.ref
		}
	}
	return domain.TimeRefNone
}

// findStudentCandidates is a coarse multi-name scan used only for
// query_schedule disambiguation, never for mutating intents.
func findStudentCandidates(text string) []string {
	matches := regexp.MustCompile(`([\p{Han}]{2,3})(?:的課|同學)`).FindAllStringSubmatch(text, -1)
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// contextConfidence heuristically scores whether the rule pass produced
// usable slots for the given intent — the gate for the LLM enhancement.
func contextConfidence(s domain.Slots, intent string) float64 {
	fields := 0
	have := 0
	check := func(present bool) {
		fields++
		if present {
			have++
		}
	}
	switch intent {
	case "add_course", "create_recurring_course":
		check(s.StudentName != "")
		check(s.CourseName != "")
		check(s.ScheduleTime != "" || s.CourseDate != "")
	case "query_schedule":
		check(s.StudentName != "" || s.CourseName != "" || s.CourseDate != "")
	case "record_content", "add_course_content":
		check(s.StudentName != "")
		check(s.CourseName != "")
	default:
		check(!s.IsEmpty())
	}
	if fields == 0 {
		return 1
	}
	return float64(have) / float64(fields)
}

// Extract is the full SlotExtractor.extract(text, intent, userId, context)
// contract: a rule pass, optionally enhanced by the LLM when the rule pass
// looks thin. The LLM result is merged over the rule slots, never
// replacing them wholesale.
func (e *Extractor) Extract(ctx context.Context, text, intent, userID string, convCtx domain.ConversationContext) domain.Slots {
	ruleSlots := e.ExtractRule(text, intent, convCtx)

	flags := e.registry.Flags()
	if !flags.EnableAIFallback || e.llm == nil {
		return ruleSlots
	}
	if contextConfidence(ruleSlots, intent) >= 0.5 {
		return ruleSlots
	}

	timeout := time.Duration(flags.AIFallbackTimeoutMs) * time.Millisecond
	llmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	llmSlots, err := e.llm.ExtractSlots(llmCtx, text, intent, ruleSlots)
	if err != nil {
		return ruleSlots
	}
	return Merge(ruleSlots, llmSlots)
}

// Merge implements the "prefer existing non-null" discipline: every
// non-zero field of base survives; overlay only fills gaps.
func Merge(base, overlay domain.Slots) domain.Slots {
	result := base
	if result.StudentName == "" {
		result.StudentName = overlay.StudentName
	}
	if len(result.StudentCandidates) == 0 {
		result.StudentCandidates = overlay.StudentCandidates
	}
	if result.CourseName == "" {
		result.CourseName = overlay.CourseName
	}
	if result.ScheduleTime == "" {
		result.ScheduleTime = overlay.ScheduleTime
	}
	if result.CourseDate == "" {
		result.CourseDate = overlay.CourseDate
	}
	if result.TimeReference == "" {
		result.TimeReference = overlay.TimeReference
	}
	if len(result.DayOfWeek) == 0 {
		result.DayOfWeek = overlay.DayOfWeek
	}
	if !result.Recurring {
		result.Recurring = overlay.Recurring
	}
	if result.RecurrenceType == "" {
		result.RecurrenceType = overlay.RecurrenceType
	}
	if result.Location == "" {
		result.Location = overlay.Location
	}
	if result.Teacher == "" {
		result.Teacher = overlay.Teacher
	}
	if result.Content == "" {
		result.Content = overlay.Content
	}
	if result.ReminderTime == nil {
		result.ReminderTime = overlay.ReminderTime
	}
	if result.ImageRef == "" {
		result.ImageRef = overlay.ImageRef
	}
	result.TimeInvalid = result.TimeInvalid || overlay.TimeInvalid
	return result
}

// IsCompleteForIntent reports whether slots carries the required fields
// for intent, per §4.4.
func IsCompleteForIntent(s domain.Slots, intent string) bool {
	switch intent {
	case "add_course", "create_recurring_course":
		return s.StudentName != "" && s.CourseName != "" &&
			(s.ScheduleTime != "" || (s.CourseDate != "" && len(s.DayOfWeek) > 0))
	case "query_schedule":
		return s.StudentName != "" || s.CourseName != "" || s.CourseDate != ""
	case "record_content", "add_course_content":
		return s.StudentName != "" && s.CourseName != ""
	default:
		return !s.IsEmpty()
	}
}

// MissingFields lists which required fields are absent for intent, used to
// drive MISSING_FIELDS and ContextStore.setExpectedInput.
func MissingFields(s domain.Slots, intent string) []string {
	var missing []string
	switch intent {
	case "add_course", "create_recurring_course":
		if s.StudentName == "" {
			missing = append(missing, "studentName")
		}
		if s.CourseName == "" {
			missing = append(missing, "courseName")
		}
		if s.ScheduleTime == "" && !(s.CourseDate != "" && len(s.DayOfWeek) > 0) {
			missing = append(missing, "scheduleTime")
		}
	case "record_content", "add_course_content":
		if s.StudentName == "" {
			missing = append(missing, "studentName")
		}
		if s.CourseName == "" {
			missing = append(missing, "courseName")
		}
	}
	return missing
}
