package domain

// ResultCode is the closed taxonomy of task-handler outcomes rendered by
// the Renderer and (at the webhook boundary only) mapped onto HTTP status.
type ResultCode string

const (
	AddCourseOK             ResultCode = "ADD_COURSE_OK"
	ModifyOK                ResultCode = "MODIFY_OK"
	CancelOK                ResultCode = "CANCEL_OK"
	QueryOK                 ResultCode = "QUERY_OK"
	QueryOKEmpty            ResultCode = "QUERY_OK_EMPTY"
	MissingFields           ResultCode = "MISSING_FIELDS"
	NotFound                ResultCode = "NOT_FOUND"
	TimeConflict            ResultCode = "TIME_CONFLICT"
	InvalidTime             ResultCode = "INVALID_TIME"
	InvalidPastTime         ResultCode = "INVALID_PAST_TIME"
	PastReminderTime        ResultCode = "PAST_REMINDER_TIME"
	RecurringCancelOptions  ResultCode = "RECURRING_CANCEL_OPTIONS"
	FeatureUnderDevelopment ResultCode = "FEATURE_UNDER_DEVELOPMENT"
	NotImplementedMonthly   ResultCode = "NOT_IMPLEMENTED_MONTHLY"
	UnknownHelp             ResultCode = "UNKNOWN_HELP"
	TempUnavailable         ResultCode = "TEMP_UNAVAILABLE"
	FirebaseError           ResultCode = "FIREBASE_ERROR"
)

// QuickReplyItem is one suggested follow-up button.
type QuickReplyItem struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// QuickReply is a bounded set of suggested follow-ups sent with a reply.
// Items beyond 13 are dropped and labels beyond 20 runes are truncated by
// the Renderer before this value leaves the process.
type QuickReply struct {
	Items []QuickReplyItem `json:"items"`
}

// TaskResult is what every TaskHandler returns. Handlers never panic or
// return a Go error for domain failures — they convert them into a code.
type TaskResult struct {
	Success       bool           `json:"success"`
	Code          ResultCode     `json:"code"`
	Message       string         `json:"message,omitempty"`
	MissingFields []string       `json:"missingFields,omitempty"`
	QuickReply    *QuickReply    `json:"quickReply,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}
