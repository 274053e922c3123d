// Package contextstore owns ConversationContext lifetime. Nothing else in
// the control plane mutates a user's context directly — every other
// component reads a copy via Service.Get and writes it back through one of
// Service's intent-shaped methods.
package contextstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coursebot/assistant/domain"
)

// DefaultTTL is the document TTL from the spec's persisted-state layout.
const DefaultTTL = 1800 * time.Second

// availabilityCacheTTL bounds how often Service re-probes a degraded
// backend, avoiding thrash under sustained outages.
const availabilityCacheTTL = 5 * time.Minute

// KV is the low-level per-key store backing Service — analogous to the
// teacher's ContextCacheStore contract (Get/Save/Delete), generalized from
// provider-cache references to ConversationContext documents.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil, nil when absent/expired
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// ErrUnavailable is returned internally when the backend is known-down;
// Service never surfaces it — callers get a degraded-but-functional result.
var ErrUnavailable = errors.New("contextstore: backend unavailable")

// Service implements the spec's ContextStore contract on top of a KV.
type Service struct {
	kv KV

	mu              sync.Mutex
	lastProbe       time.Time
	lastProbeResult bool
}

func NewService(kv KV) *Service {
	return &Service{kv: kv}
}

func key(userID string) string {
	return "conversation:" + userID
}

// available reports whether the backend appeared healthy within the last
// availabilityCacheTTL, re-probing with Ping only when the cache is stale.
func (s *Service) available(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastProbe) < availabilityCacheTTL {
		return s.lastProbeResult
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok := s.kv.Ping(pingCtx) == nil
	s.lastProbe = time.Now()
	s.lastProbeResult = ok
	return ok
}

// Get returns the user's context, or a fresh empty one if absent, expired,
// malformed, or the backend is unavailable.
func (s *Service) Get(ctx context.Context, userID string) domain.ConversationContext {
	if !s.available(ctx) {
		return domain.Empty(userID)
	}
	data, err := s.kv.Get(ctx, key(userID))
	if err != nil || data == nil {
		return domain.Empty(userID)
	}
	cc, err := decode(data)
	if err != nil {
		return domain.Empty(userID)
	}
	if time.Since(msToTime(cc.LastActivityUnixMs)) > DefaultTTL {
		return domain.Empty(userID)
	}
	return cc
}

// Save persists cc for userID, truncating History and MentionedEntities to
// their invariant bounds and refreshing LastActivityUnixMs. Returns false
// (never an error) when the backend is unavailable — degraded mode must
// never block the pipeline.
func (s *Service) Save(ctx context.Context, userID string, cc domain.ConversationContext, ttl time.Duration) bool {
	if !s.available(ctx) {
		return false
	}
	cc.UserID = userID
	cc.LastActivityUnixMs = time.Now().UnixMilli()
	if len(cc.History) > domain.MaxHistory {
		cc.History = cc.History[len(cc.History)-domain.MaxHistory:]
	}
	cc.MentionedEntities.Students = truncateTail(cc.MentionedEntities.Students, domain.MaxMentionedEntities)
	cc.MentionedEntities.Courses = truncateTail(cc.MentionedEntities.Courses, domain.MaxMentionedEntities)
	cc.MentionedEntities.Dates = truncateTail(cc.MentionedEntities.Dates, domain.MaxMentionedEntities)
	cc.MentionedEntities.Times = truncateTail(cc.MentionedEntities.Times, domain.MaxMentionedEntities)
	if cc.LastActions == nil {
		cc.LastActions = map[string]domain.ActionRecord{}
	}

	data, err := encode(cc)
	if err != nil {
		return false
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := s.kv.Save(ctx, key(userID), data, ttl); err != nil {
		return false
	}
	return true
}

// Clear removes userID's context entirely.
func (s *Service) Clear(ctx context.Context, userID string) bool {
	if !s.available(ctx) {
		return false
	}
	return s.kv.Delete(ctx, key(userID)) == nil
}

// SetExpectedInput records which inputs the next turn should supplement
// and parks the partial slot record being filled in.
func (s *Service) SetExpectedInput(ctx context.Context, userID string, flow domain.Flow, inputs []string, pending *domain.PendingSlots) bool {
	cc := s.Get(ctx, userID)
	cc.CurrentFlow = flow
	cc.ExpectingInput = inputs
	cc.PendingData = pending
	return s.Save(ctx, userID, cc, DefaultTTL)
}

// ClearExpectedInput resets the expectation state after a flow completes.
func (s *Service) ClearExpectedInput(ctx context.Context, userID string) bool {
	cc := s.Get(ctx, userID)
	cc.CurrentFlow = domain.FlowNone
	cc.ExpectingInput = nil
	cc.PendingData = nil
	return s.Save(ctx, userID, cc, DefaultTTL)
}

// RecordUserMessage appends the user's turn to history.
func (s *Service) RecordUserMessage(ctx context.Context, userID, text, intent string, slots domain.Slots) bool {
	cc := s.Get(ctx, userID)
	cc.History = append(cc.History, domain.HistoryTurn{
		Role:            "user",
		Text:            text,
		Intent:          intent,
		Slots:           &slots,
		TimestampUnixMs: time.Now().UnixMilli(),
	})
	recordMentions(&cc.MentionedEntities, slots)
	return s.Save(ctx, userID, cc, DefaultTTL)
}

// RecordBotResponse appends the bot's reply to history.
func (s *Service) RecordBotResponse(ctx context.Context, userID, text string, quickReply bool) bool {
	cc := s.Get(ctx, userID)
	cc.History = append(cc.History, domain.HistoryTurn{
		Role:            "bot",
		Text:            text,
		TimestampUnixMs: time.Now().UnixMilli(),
		QuickReply:      quickReply,
	})
	return s.Save(ctx, userID, cc, DefaultTTL)
}

// RecordTaskResult stores the outcome under LastActions and, on success,
// sets ExpectingInput to confirmation/modification so the next turn can
// confirm/modify. CurrentFlow is left unchanged.
func (s *Service) RecordTaskResult(ctx context.Context, userID, intent string, slots domain.Slots, result domain.TaskResult) bool {
	cc := s.Get(ctx, userID)
	if cc.LastActions == nil {
		cc.LastActions = map[string]domain.ActionRecord{}
	}
	cc.LastActions[intent] = domain.ActionRecord{
		Intent:          intent,
		Slots:           slots,
		Result:          result,
		TimestampUnixMs: time.Now().UnixMilli(),
	}
	if result.Success {
		cc.ExpectingInput = []string{domain.ExpectConfirmation, domain.ExpectModification}
	}
	return s.Save(ctx, userID, cc, DefaultTTL)
}

// SetActiveQuerySession pins the subject of follow-up queries, resetting
// the pin when the new utterance names a different student.
func (s *Service) SetActiveQuerySession(ctx context.Context, userID string, session domain.ActiveQuerySession) bool {
	cc := s.Get(ctx, userID)
	if cc.ActiveQuerySession != nil && session.StudentName != "" &&
		cc.ActiveQuerySession.StudentName != "" &&
		cc.ActiveQuerySession.StudentName != session.StudentName {
		cc.ActiveQuerySession = &session
	} else if cc.ActiveQuerySession == nil {
		cc.ActiveQuerySession = &session
	} else {
		merged := *cc.ActiveQuerySession
		if session.StudentName != "" {
			merged.StudentName = session.StudentName
		}
		if session.TimeReference != "" {
			merged.TimeReference = session.TimeReference
		}
		cc.ActiveQuerySession = &merged
	}
	return s.Save(ctx, userID, cc, DefaultTTL)
}

// GetLastAction returns the most recent action record, optionally filtered
// by intent type. Returns (zero, false) when none exists.
func (s *Service) GetLastAction(ctx context.Context, userID string, intentType string) (domain.ActionRecord, bool) {
	cc := s.Get(ctx, userID)
	if intentType != "" {
		rec, ok := cc.LastActions[intentType]
		return rec, ok
	}
	var latest domain.ActionRecord
	found := false
	for _, rec := range cc.LastActions {
		if !found || rec.TimestampUnixMs > latest.TimestampUnixMs {
			latest = rec
			found = true
		}
	}
	return latest, found
}

// HealthStatus is the payload for /health/deps.
type HealthStatus struct {
	Status   string          `json:"status"`
	Features map[string]bool `json:"features"`
}

// HealthCheck reports the backend's current availability.
func (s *Service) HealthCheck(ctx context.Context) HealthStatus {
	ok := s.available(ctx)
	status := "ok"
	if !ok {
		status = "degraded"
	}
	return HealthStatus{
		Status: status,
		Features: map[string]bool{
			"persistent": ok,
		},
	}
}

func recordMentions(m *domain.MentionedEntities, slots domain.Slots) {
	if slots.StudentName != "" {
		m.Students = appendDeduped(m.Students, slots.StudentName)
	}
	if slots.CourseName != "" {
		m.Courses = appendDeduped(m.Courses, slots.CourseName)
	}
	if slots.CourseDate != "" {
		m.Dates = appendDeduped(m.Dates, slots.CourseDate)
	}
	if slots.ScheduleTime != "" {
		m.Times = appendDeduped(m.Times, slots.ScheduleTime)
	}
}

func appendDeduped(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func truncateTail(list []string, max int) []string {
	if len(list) <= max {
		return list
	}
	return list[len(list)-max:]
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
