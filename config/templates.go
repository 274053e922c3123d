package config

// Templates are keyed messages with {variable} placeholders substituted
// by the Renderer. Keys mirror domain.ResultCode plus a few UI-only labels.
func DefaultTemplates() map[string]string {
	return map[string]string{
		"ADD_COURSE_OK":             "✅ 已為 {studentName} 安排「{courseName}」，時間 {courseDate} {scheduleTime}",
		"MODIFY_OK":                 "✏️ 已更新「{courseName}」：{changes}",
		"CANCEL_OK":                 "🗑️ 已取消「{courseName}」（{courseDate}）",
		"MISSING_FIELDS":            "還需要以下資訊：{missingFieldsText}",
		"NOT_FOUND":                 "找不到符合的課程，請確認學生姓名或課程名稱",
		"TIME_CONFLICT":             "該時段 {courseDate} {scheduleTime} 已有其他課程，請選擇其他時間",
		"INVALID_TIME":              "時間格式看起來不對，可以再說一次嗎？",
		"INVALID_PAST_TIME":         "這個時間已經過去了，請提供未來的時間",
		"PAST_REMINDER_TIME":        "提醒時間已經過去了，請提供更早的提醒時間",
		"RECURRING_CANCEL_OPTIONS":  "「{courseName}」是固定課程，要取消的範圍是？",
		"FEATURE_UNDER_DEVELOPMENT": "這個功能還在開發中，敬請期待",
		"NOT_IMPLEMENTED_MONTHLY":   "目前不支援每月重複課程，這筆課程沒有建立",
		"UNKNOWN_HELP":              "我還不太明白，你可以試試：「小明明天下午2點要上數學課」、「小明今天有什麼課？」",
		"TEMP_UNAVAILABLE":          "系統暫時無法回應，請稍後再試",
		"FIREBASE_ERROR":            "資料儲存發生問題，請稍後再試",
		"QUERY_EMPTY_TEMPLATE":      "📅 {subject}{dateDescription}的課表 沒有安排課程",
		"QUERY_EMPTY_GUIDANCE":      "你可以說「小明明天下午2點要上數學課」來新增一筆課程",
		"WELCOME":                   "歡迎使用課程小幫手！你可以直接告訴我想安排的課程，例如「小明明天下午2點要上數學課」",
	}
}

// DateDescriptions mirrors §4.1's relative set for the Renderer's query
// templates ("this_week" -> "本週", etc.).
func DateDescriptions() map[string]string {
	return map[string]string{
		"today":              "今天",
		"tomorrow":           "明天",
		"day_after_tomorrow": "後天",
		"yesterday":          "昨天",
		"this_week":          "本週",
		"next_week":          "下週",
		"last_week":          "上週",
	}
}
