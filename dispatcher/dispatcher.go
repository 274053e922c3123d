// Package dispatcher maps a classified intent onto its TaskHandler, per
// the fixed table in §4.6 — deliberately a lookup table, not an agentic
// or ReAct-style routing loop.
package dispatcher

import (
	"context"

	"github.com/coursebot/assistant/domain"
)

// Event carries whatever the webhook layer knows about the inbound
// message beyond text — currently just the raw userID and image ref,
// threaded through to handlers that need them (record_content).
type Event struct {
	UserID   string
	Text     string
	Intent   string
	ImageRef string
}

// Handler is the TaskHandlers contract: (slots, userId, event) ->
// TaskResult. Handlers never panic; every failure path returns a
// TaskResult with Success=false and a ResultCode.
type Handler func(ctx context.Context, slots domain.Slots, userID string, event Event, convCtx domain.ConversationContext) domain.TaskResult

// Dispatcher holds the intent->handler table and falls back to
// handleUnknown for anything not registered.
type Dispatcher struct {
	routes  map[string]Handler
	unknown Handler
}

func New(unknown Handler) *Dispatcher {
	return &Dispatcher{routes: make(map[string]Handler), unknown: unknown}
}

// Register wires intent to handler; intents sharing a handler (e.g.
// add_course and create_recurring_course) each call Register once with
// the same Handler value.
func (d *Dispatcher) Register(intent string, h Handler) {
	d.routes[intent] = h
}

// Dispatch looks up intent's handler and invokes it, falling back to
// the unknown handler for any unregistered intent.
func (d *Dispatcher) Dispatch(ctx context.Context, intent string, slots domain.Slots, userID string, event Event, convCtx domain.ConversationContext) domain.TaskResult {
	event.Intent = intent
	h, ok := d.routes[intent]
	if !ok || h == nil {
		if d.unknown != nil {
			return d.unknown(ctx, slots, userID, event, convCtx)
		}
		return domain.TaskResult{Success: false, Code: domain.UnknownHelp}
	}
	return h(ctx, slots, userID, event, convCtx)
}

// RegisterDefaults wires the standard §4.6 table against the given
// handler set, grouping intents that share a handler.
func RegisterDefaults(d *Dispatcher, handlers map[string]Handler) {
	groups := map[string][]string{
		"handleAddCourse":     {"add_course", "create_recurring_course"},
		"handleModifyCourse":  {"modify_course"},
		"handleCancelCourse":  {"cancel_course", "stop_recurring_course"},
		"handleQuerySchedule": {"query_schedule"},
		"handleRecordContent": {"record_content", "add_course_content"},
		"handleSetReminder":   {"set_reminder"},
		"handleConfirmAction": {"confirm_action"},
		"handleActionVerb":    {"modify_action", "cancel_action", "restart_input"},
	}
	for name, intents := range groups {
		h, ok := handlers[name]
		if !ok {
			continue
		}
		for _, intent := range intents {
			d.Register(intent, h)
		}
	}
}
