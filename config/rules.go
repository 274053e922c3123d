package config

import "regexp"

// IntentRule is one row of the ordered intent-rule table the RuleMatcher
// scores every utterance against. Priority is lower-is-higher, matching
// the scoring formula 10*keywords + 15*patterns + (20-priority).
type IntentRule struct {
	Intent           string
	Keywords         []string
	Patterns         []*regexp.Regexp
	RequiredKeywords []string   // disjunction: at least one must appear
	RequiredGroups   [][]string // each inner group: at least one member must appear
	Exclusions       []string
	Priority         int
	RequiresContext  bool
}

// DefaultIntentRules is the ordered rule table loaded at process start.
// It is immutable after load, per the design note on hot-reload safety.
func DefaultIntentRules() []IntentRule {
	return []IntentRule{
		{
			Intent:   "add_course",
			Keywords: []string{"新增", "安排", "要上"},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`要上.*課`),
				regexp.MustCompile(`安排.*課`),
			},
			RequiredGroups: [][]string{
				{"點", ":", "上午", "中午", "下午", "晚上", "每週", "每周", "每天", "每月"},
			},
			Priority: 3,
		},
		{
			Intent:           "create_recurring_course",
			Keywords:         []string{"每週", "每周", "每天", "每日", "每月", "固定"},
			Patterns:         []*regexp.Regexp{regexp.MustCompile(`每(週|周|天|日|月).*課`)},
			RequiredKeywords: []string{"新增", "安排", "要上"},
			Priority:         2,
		},
		{
			Intent:   "modify_course",
			Keywords: []string{"改到", "改成", "修改", "更改", "換到", "換成", "改"},
			Priority: 3,
		},
		{
			Intent:   "cancel_course",
			Keywords: []string{"取消", "刪除", "刪掉"},
			Priority: 1,
		},
		{
			Intent:           "stop_recurring_course",
			Keywords:         []string{"取消", "刪除"},
			RequiredKeywords: []string{"每週", "每周", "每天", "固定課"},
			Priority:         1,
		},
		{
			Intent:   "query_schedule",
			Keywords: []string{"課表", "查詢", "看一下", "有什麼課", "今天", "明天", "後天", "這週", "下週", "本週", "課程安排", "幾點"},
			Priority: 4,
		},
		{
			Intent:   "query_course_content",
			Keywords: []string{"上了什麼", "學了什麼", "內容", "教了"},
			Priority: 4,
		},
		{
			Intent:   "record_content",
			Keywords: []string{"記錄", "紀錄", "備註"},
			Priority: 3,
		},
		{
			Intent:   "add_course_content",
			Keywords: []string{"補充", "追加內容"},
			Priority: 3,
		},
		{
			Intent:   "set_reminder",
			Keywords: []string{"提醒"},
			Priority: 1,
		},
		{
			Intent:          "confirm_action",
			Keywords:        []string{"確認", "好", "是", "對", "沒錯", "可以"},
			Priority:        5,
			RequiresContext: true,
		},
		{
			Intent:          "modify_action",
			Keywords:        []string{"不對", "改一下", "再改"},
			Priority:        5,
			RequiresContext: true,
		},
		{
			Intent:          "cancel_action",
			Keywords:        []string{"取消操作", "不要了", "算了"},
			Priority:        4,
			RequiresContext: true,
		},
		{
			Intent:          "correction_intent",
			Keywords:        []string{"不是", "搞錯", "弄錯"},
			Priority:        5,
			RequiresContext: true,
		},
		{
			Intent:   "restart_input",
			Keywords: []string{"重新來", "重新開始", "重填"},
			Priority: 5,
		},
	}
}
