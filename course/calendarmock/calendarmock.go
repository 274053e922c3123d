// Package calendarmock is a CalendarSync that assigns deterministic
// fake event IDs without reaching any real calendar API — the default
// collaborator until an OAuth2/service-account calendar integration is
// configured, per spec §6's reported auth mode.
package calendarmock

import (
	"context"
	"fmt"
	"sync"

	"github.com/coursebot/assistant/course"
	"github.com/coursebot/assistant/domain"
)

type Sync struct {
	mu     sync.Mutex
	nextID int
	events map[string]domain.Course
}

func New() *Sync {
	return &Sync{events: make(map[string]domain.Course)}
}

func (s *Sync) CreateEvent(ctx context.Context, c domain.Course) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("mock-evt-%d", s.nextID)
	s.events[id] = c
	return id, nil
}

func (s *Sync) UpdateEvent(ctx context.Context, eventID string, c domain.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return fmt.Errorf("calendarmock: unknown event %q", eventID)
	}
	s.events[eventID] = c
	return nil
}

func (s *Sync) DeleteEvent(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, eventID)
	return nil
}

func (s *Sync) AuthMode() course.CalendarAuthMode {
	return course.CalendarAuthMock
}
