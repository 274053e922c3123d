// Package tracelog is the process-local decision ring buffer: a bounded
// circular log of per-request trace records, queryable by traceId for
// GET /debug/decision. Grounded on the teacher's pkg/botmonitor, minus
// its Valkey pub/sub distribution — the spec treats this as a
// single-process debugging aid, not a cluster-wide event bus.
package tracelog

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/coursebot/assistant/domain"
)

const DefaultCapacity = 200

// Buffer is a fixed-size ring of domain.TraceRecord, safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	events []domain.TraceRecord
	idx    int
	count  int
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{events: make([]domain.TraceRecord, capacity)}
}

// Record appends a trace record, overwriting the oldest entry once full.
func (b *Buffer) Record(rec domain.TraceRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[b.idx] = rec
	b.idx = (b.idx + 1) % len(b.events)
	if b.count < len(b.events) {
		b.count++
	}
}

// ByTraceID returns every recorded stage for a given traceId, oldest first.
func (b *Buffer) ByTraceID(traceID string) []domain.TraceRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.TraceRecord
	start := (b.idx - b.count) % len(b.events)
	if start < 0 {
		start += len(b.events)
	}
	for i := 0; i < b.count; i++ {
		e := b.events[(start+i)%len(b.events)]
		if e.TraceID == traceID {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns up to n of the most recently recorded records, newest
// last, formatting each as a humanize.Time-relative debug line.
func (b *Buffer) Recent(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]string, 0, n)
	start := (b.idx - n) % len(b.events)
	if start < 0 {
		start += len(b.events)
	}
	for i := 0; i < n; i++ {
		e := b.events[(start+i)%len(b.events)]
		out = append(out, humanize.Time(e.Timestamp)+" ["+string(e.Stage)+"] "+e.TraceID+" "+e.Intent)
	}
	return out
}
