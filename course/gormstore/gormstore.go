// Package gormstore is the gorm-backed CourseStore, grounded on the
// teacher's database connection layer: driver selection by driver name,
// connection-pool tuning, and AutoMigrate-on-open.
package gormstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/coursebot/assistant/course"
	"github.com/coursebot/assistant/domain"
)

// courseModel is the gorm row shape for domain.Course.
type courseModel struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"index"`
	StudentName     string
	CourseName      string
	CourseDate      string
	ScheduleTime    string
	IsRecurring     bool
	RecurrenceType  string
	DayOfWeek       string // comma-joined ints
	Location        string
	Teacher         string
	Status          string
	Cancelled       bool
	CalendarEventID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (courseModel) TableName() string { return "courses" }

// parentModel is the gorm row shape for domain.Parent.
type parentModel struct {
	UserID      string `gorm:"primaryKey"`
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (parentModel) TableName() string { return "parents" }

// Open picks a gorm dialector from driver: "postgres"/"postgresql" opens
// dsn with the Postgres driver, "sqlite"/"sqlite3"/"" opens it with SQLite
// (an empty dsn means a shared in-memory database), the same driver-switch
// the teacher applies in its connection layer.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "sqlite", "sqlite3", "":
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(&courseModel{}, &parentModel{}); err != nil {
		return nil, fmt.Errorf("gormstore: automigrate: %w", err)
	}
	return db, nil
}

// Store implements course.Store over gorm.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func toDomain(m courseModel) domain.Course {
	var days []int
	if m.DayOfWeek != "" {
		for _, part := range strings.Split(m.DayOfWeek, ",") {
			var d int
			if _, err := fmt.Sscanf(part, "%d", &d); err == nil {
				days = append(days, d)
			}
		}
	}
	return domain.Course{
		ID:              m.ID,
		UserID:          m.UserID,
		StudentName:     m.StudentName,
		CourseName:      m.CourseName,
		CourseDate:      m.CourseDate,
		ScheduleTime:    m.ScheduleTime,
		IsRecurring:     m.IsRecurring,
		RecurrenceType:  domain.RecurrenceType(m.RecurrenceType),
		DayOfWeek:       days,
		Location:        m.Location,
		Teacher:         m.Teacher,
		Status:          m.Status,
		Cancelled:       m.Cancelled,
		CalendarEventID: m.CalendarEventID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func fromDomain(c domain.Course) courseModel {
	days := make([]string, len(c.DayOfWeek))
	for i, d := range c.DayOfWeek {
		days[i] = fmt.Sprintf("%d", d)
	}
	return courseModel{
		ID:              c.ID,
		UserID:          c.UserID,
		StudentName:     c.StudentName,
		CourseName:      c.CourseName,
		CourseDate:      c.CourseDate,
		ScheduleTime:    c.ScheduleTime,
		IsRecurring:     c.IsRecurring,
		RecurrenceType:  string(c.RecurrenceType),
		DayOfWeek:       strings.Join(days, ","),
		Location:        c.Location,
		Teacher:         c.Teacher,
		Status:          c.Status,
		Cancelled:       c.Cancelled,
		CalendarEventID: c.CalendarEventID,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func (s *Store) GetOrCreateParent(ctx context.Context, userID string) (domain.Parent, error) {
	var row parentModel
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if err == nil {
		return domain.Parent{UserID: row.UserID, DisplayName: row.DisplayName, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}, nil
	}
	if err != gorm.ErrRecordNotFound {
		return domain.Parent{}, err
	}

	now := time.Now()
	row = parentModel{UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Parent{}, err
	}
	return domain.Parent{UserID: row.UserID, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}, nil
}

func (s *Store) GetCoursesByStudent(ctx context.Context, userID, studentName string, rng *course.DateRange) ([]domain.Course, error) {
	q := s.db.WithContext(ctx).Where("user_id = ? AND cancelled = ?", userID, false)
	if studentName != "" {
		q = q.Where("student_name LIKE ?", "%"+studentName+"%")
	}
	if rng != nil {
		// A recurring template's own course_date only records its anchor
		// (first) occurrence, which may fall well before rng.Start — exclude
		// it from the date filter so the caller can still expand it and find
		// occurrences that land inside the range.
		dateQ := s.db.Where("is_recurring = ?", true)
		if !rng.Start.IsZero() {
			dateQ = dateQ.Or("course_date >= ?", rng.Start.Format("2006-01-02"))
		}
		if !rng.End.IsZero() {
			dateQ = dateQ.Where("course_date <= ?", rng.End.Format("2006-01-02"))
		}
		q = q.Where(dateQ)
	}
	var rows []courseModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Course, len(rows))
	for i, row := range rows {
		out[i] = toDomain(row)
	}
	return out, nil
}

func (s *Store) FindCourse(ctx context.Context, userID, studentName, courseName, courseDate string) (*domain.Course, error) {
	q := s.db.WithContext(ctx).Where("user_id = ? AND student_name = ? AND course_name = ? AND cancelled = ?", userID, studentName, courseName, false)
	if courseDate != "" {
		q = q.Where("course_date = ?", courseDate)
	}
	var row courseModel
	err := q.Order("course_date asc").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c := toDomain(row)
	return &c, nil
}

func (s *Store) Create(ctx context.Context, c domain.Course) (domain.Course, error) {
	now := time.Now()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = domain.CourseStatusScheduled
	}
	row := fromDomain(c)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Course{}, err
	}
	return toDomain(row), nil
}

func (s *Store) Update(ctx context.Context, id string, patch course.Patch) (domain.Course, error) {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if patch.CourseName != nil {
		updates["course_name"] = *patch.CourseName
	}
	if patch.ScheduleTime != nil {
		updates["schedule_time"] = *patch.ScheduleTime
	}
	if patch.CourseDate != nil {
		updates["course_date"] = *patch.CourseDate
	}
	if patch.Location != nil {
		updates["location"] = *patch.Location
	}
	if patch.Teacher != nil {
		updates["teacher"] = *patch.Teacher
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.Cancelled != nil {
		updates["cancelled"] = *patch.Cancelled
	}
	if patch.CalendarEventID != nil {
		updates["calendar_event_id"] = *patch.CalendarEventID
	}

	if err := s.db.WithContext(ctx).Model(&courseModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return domain.Course{}, err
	}
	var row courseModel
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return domain.Course{}, err
	}
	return toDomain(row), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&courseModel{}, "id = ?", id).Error
}

func (s *Store) CheckTimeConflicts(ctx context.Context, userID, courseDate, scheduleTime string, excludeID string) ([]domain.Course, error) {
	q := s.db.WithContext(ctx).Where(
		"user_id = ? AND course_date = ? AND schedule_time = ? AND cancelled = ?",
		userID, courseDate, scheduleTime, false,
	)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var rows []courseModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Course, len(rows))
	for i, row := range rows {
		out[i] = toDomain(row)
	}
	return out, nil
}

func (s *Store) QueryDocuments(ctx context.Context, entityType string, criteria course.Criteria) ([]domain.Course, error) {
	if entityType != "course" {
		return nil, fmt.Errorf("gormstore: unsupported entity type %q", entityType)
	}
	rows, err := s.GetCoursesByStudent(ctx, criteria.UserID, criteria.StudentName, criteria.Range)
	if err != nil || criteria.CourseName == "" {
		return rows, err
	}
	out := rows[:0]
	for _, c := range rows {
		if strings.Contains(c.CourseName, criteria.CourseName) {
			out = append(out, c)
		}
	}
	return out, nil
}
