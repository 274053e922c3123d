// Package course declares the CourseStore and CalendarSync boundaries —
// the persistence and calendar-sync collaborators the spec treats as
// external. Concrete adapters live in course/gormstore and
// course/calendarmock.
package course

import (
	"context"
	"time"

	"github.com/coursebot/assistant/domain"
)

// DateRange bounds a schedule query; either end may be zero to mean open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Patch carries partial field updates for Store.Update; a nil pointer
// field means "leave unchanged".
type Patch struct {
	CourseName      *string
	ScheduleTime    *string
	CourseDate      *string
	Location        *string
	Teacher         *string
	Status          *string
	Cancelled       *bool
	CalendarEventID *string
}

// Criteria is the generic filter for QueryDocuments, used by tasks that
// need an ad-hoc lookup beyond the named Store methods.
type Criteria struct {
	UserID      string
	StudentName string
	CourseName  string
	Range       *DateRange
}

// Store is the CourseStore contract: §6's getOrCreateParent,
// getCoursesByStudent, findCourse, create, update, delete,
// checkTimeConflicts, queryDocuments.
type Store interface {
	GetOrCreateParent(ctx context.Context, userID string) (domain.Parent, error)
	GetCoursesByStudent(ctx context.Context, userID, studentName string, rng *DateRange) ([]domain.Course, error)
	FindCourse(ctx context.Context, userID, studentName, courseName, courseDate string) (*domain.Course, error)
	Create(ctx context.Context, c domain.Course) (domain.Course, error)
	Update(ctx context.Context, id string, patch Patch) (domain.Course, error)
	Delete(ctx context.Context, id string) error
	CheckTimeConflicts(ctx context.Context, userID, courseDate, scheduleTime string, excludeID string) ([]domain.Course, error)
	QueryDocuments(ctx context.Context, entityType string, criteria Criteria) ([]domain.Course, error)
}

// CalendarAuthMode is reported by the webhook's /health/gcal endpoint.
type CalendarAuthMode string

const (
	CalendarAuthService CalendarAuthMode = "service"
	CalendarAuthOAuth2  CalendarAuthMode = "oauth2"
	CalendarAuthMock    CalendarAuthMode = "mock"
)

// CalendarSync is the external calendar collaborator: createEvent,
// updateEvent, deleteEvent.
type CalendarSync interface {
	CreateEvent(ctx context.Context, c domain.Course) (string, error)
	UpdateEvent(ctx context.Context, eventID string, c domain.Course) error
	DeleteEvent(ctx context.Context, eventID string) error
	AuthMode() CalendarAuthMode
}
