// Package domain holds the shared data shapes passed between the
// conversational control plane's components: conversation state, extracted
// slots, course records and the per-request trace record.
package domain

import "time"

// Flow is the multi-turn flow a user is currently inside.
type Flow string

const (
	FlowNone               Flow = "none"
	FlowCourseCreation     Flow = "course_creation"
	FlowCourseModification Flow = "course_modification"
	FlowContentRecording   Flow = "content_recording"
)

// Expected input tags used to drive SupplementRouting and expectingInput.
const (
	ExpectStudentName  = "student_name_input"
	ExpectCourseName   = "course_name_input"
	ExpectScheduleTime = "schedule_time_input"
	ExpectCourseDate   = "course_date_input"
	ExpectConfirmation = "confirmation"
	ExpectModification = "modification"
	ExpectCancellation = "cancellation"
)

// TimeReference is the closed set of relative date tokens.
type TimeReference string

const (
	TimeRefNone             TimeReference = ""
	TimeRefToday            TimeReference = "today"
	TimeRefTomorrow         TimeReference = "tomorrow"
	TimeRefDayAfterTomorrow TimeReference = "day_after_tomorrow"
	TimeRefYesterday        TimeReference = "yesterday"
	TimeRefThisWeek         TimeReference = "this_week"
	TimeRefNextWeek         TimeReference = "next_week"
	TimeRefLastWeek         TimeReference = "last_week"
)

// RecurrenceType is the closed set of recurrence kinds a course can carry.
type RecurrenceType string

const (
	RecurrenceNone    RecurrenceType = ""
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

// Slots is the union of every optional typed field the SlotExtractor can
// produce. Merging two Slots values is always field-wise "prefer existing
// non-null" — see slots.Merge.
type Slots struct {
	StudentName       string         `json:"studentName,omitempty"`
	StudentCandidates []string       `json:"studentCandidates,omitempty"`
	CourseName        string         `json:"courseName,omitempty"`
	ScheduleTime      string         `json:"scheduleTime,omitempty"` // HH:MM 24h
	CourseDate        string         `json:"courseDate,omitempty"`   // YYYY-MM-DD
	TimeReference     TimeReference  `json:"timeReference,omitempty"`
	DayOfWeek         []int          `json:"dayOfWeek,omitempty"` // 0-6
	Recurring         bool           `json:"recurring,omitempty"`
	RecurrenceType    RecurrenceType `json:"recurrenceType,omitempty"`
	Location          string         `json:"location,omitempty"`
	Teacher           string         `json:"teacher,omitempty"`
	Content           string         `json:"content,omitempty"`
	ReminderTime      *int           `json:"reminderTime,omitempty"` // minutes
	ImageRef          string         `json:"imageRef,omitempty"`

	// TimeInvalid is an internal pipeline signal, never persisted as a slot
	// value: the unified entity pass recognized a time-of-day token but it
	// was out of range (e.g. "25點"), so the task layer should report
	// INVALID_TIME rather than treat the field as merely absent.
	TimeInvalid bool `json:"-"`
}

// IsEmpty reports whether every field is at its zero value.
func (s Slots) IsEmpty() bool {
	return s.StudentName == "" && len(s.StudentCandidates) == 0 && s.CourseName == "" &&
		s.ScheduleTime == "" && s.CourseDate == "" && s.TimeReference == "" &&
		len(s.DayOfWeek) == 0 && !s.Recurring && s.RecurrenceType == "" &&
		s.Location == "" && s.Teacher == "" && s.Content == "" &&
		s.ReminderTime == nil && s.ImageRef == ""
}

// PendingSlots is the partially-filled slot record parked in
// ConversationContext while the user supplies missing fields.
type PendingSlots struct {
	Intent          string   `json:"intent"`
	ExistingSlots   Slots    `json:"existingSlots"`
	MissingFields   []string `json:"missingFields"`
	CreatedAtUnixMs int64    `json:"createdAtUnixMs"`
}

// ActionRecord is the outcome of the most recent task execution for a given
// intent, kept so confirm/modify/cancel follow-up turns can reference it.
type ActionRecord struct {
	Intent          string     `json:"intent"`
	Slots           Slots      `json:"slots"`
	Result          TaskResult `json:"result"`
	TimestampUnixMs int64      `json:"timestampUnixMs"`
}

// HistoryTurn is one entry of the bounded conversation transcript.
type HistoryTurn struct {
	Role            string `json:"role"` // user | bot
	Text            string `json:"text"`
	Intent          string `json:"intent,omitempty"`
	Slots           *Slots `json:"slots,omitempty"`
	TimestampUnixMs int64  `json:"timestampUnixMs"`
	QuickReply      bool   `json:"quickReply,omitempty"`
}

// ActiveQuerySession pins the subject of a follow-up query.
type ActiveQuerySession struct {
	StudentName   string        `json:"studentName,omitempty"`
	TimeReference TimeReference `json:"timeReference,omitempty"`
}

// MentionedEntities tracks the bounded recency lists used to resolve
// pronouns and elided references across turns. Each slice is capped at 10.
type MentionedEntities struct {
	Students []string `json:"students,omitempty"`
	Courses  []string `json:"courses,omitempty"`
	Dates    []string `json:"dates,omitempty"`
	Times    []string `json:"times,omitempty"`
}

const (
	MaxHistory           = 5
	MaxMentionedEntities = 10
)

// ConversationContext is the per-user document owned exclusively by the
// ContextStore. Nothing outside contextstore ever mutates it directly;
// other components receive a copy, change it, and hand it back to Save.
type ConversationContext struct {
	UserID             string                  `json:"userId"`
	LastActivityUnixMs int64                   `json:"lastActivityUnixMs"`
	CurrentFlow        Flow                    `json:"currentFlow"`
	ExpectingInput     []string                `json:"expectingInput"`
	PendingData        *PendingSlots           `json:"pendingData,omitempty"`
	LastActions        map[string]ActionRecord `json:"lastActions"`
	MentionedEntities  MentionedEntities       `json:"mentionedEntities"`
	History            []HistoryTurn           `json:"history"`
	ActiveQuerySession *ActiveQuerySession     `json:"activeQuerySession,omitempty"`
}

// Empty returns a fresh, zero-value context for userID, used whenever the
// store has nothing (or an expired entry) for that key.
func Empty(userID string) ConversationContext {
	return ConversationContext{
		UserID:      userID,
		CurrentFlow: FlowNone,
		LastActions: map[string]ActionRecord{},
	}
}

// Course is a persisted course record, owned by the external CourseStore.
type Course struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	StudentName     string         `json:"studentName"`
	CourseName      string         `json:"courseName"`
	CourseDate      string         `json:"courseDate"`   // YYYY-MM-DD
	ScheduleTime    string         `json:"scheduleTime"` // HH:MM
	IsRecurring     bool           `json:"isRecurring"`
	RecurrenceType  RecurrenceType `json:"recurrenceType,omitempty"`
	DayOfWeek       []int          `json:"dayOfWeek,omitempty"`
	Location        string         `json:"location,omitempty"`
	Teacher         string         `json:"teacher,omitempty"`
	Status          string         `json:"status"` // scheduled | cancelled | completed
	Cancelled       bool           `json:"cancelled"`
	CalendarEventID string         `json:"calendarEventId,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

const (
	CourseStatusScheduled = "scheduled"
	CourseStatusCancelled = "cancelled"
	CourseStatusCompleted = "completed"
)

// Parent is the guardian/account entity behind a userId, created lazily on
// first contact (the webhook "follow" event, or the first add_course).
type Parent struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TraceStage enumerates the pipeline stages a TraceRecord can describe.
type TraceStage string

const (
	StageInbound  TraceStage = "inbound"
	StageNLP      TraceStage = "nlp"
	StageSlots    TraceStage = "slots"
	StageTask     TraceStage = "task"
	StageRender   TraceStage = "render"
	StageOutbound TraceStage = "outbound"
	StageError    TraceStage = "error"
)

// TraceRecord is one structured log line of a request, also kept in the
// process-local bounded ring buffer for the /debug/decision endpoint.
type TraceRecord struct {
	TraceID           string      `json:"traceId"`
	UserID            string      `json:"userId"`
	Stage             TraceStage  `json:"stage"`
	Intent            string      `json:"intent,omitempty"`
	Slots             *Slots      `json:"slots,omitempty"`
	Result            *TaskResult `json:"result,omitempty"`
	LatencyMs         int64       `json:"latencyMs,omitempty"`
	Text              string      `json:"text,omitempty"`
	QuickReplyPresent bool        `json:"quickReplyPresent,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}
