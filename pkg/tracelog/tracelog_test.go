package tracelog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursebot/assistant/domain"
)

func TestByTraceIDFiltersAcrossStages(t *testing.T) {
	b := New(10)
	b.Record(domain.TraceRecord{TraceID: "t1", Stage: domain.StageInbound, Timestamp: time.Now()})
	b.Record(domain.TraceRecord{TraceID: "t2", Stage: domain.StageInbound, Timestamp: time.Now()})
	b.Record(domain.TraceRecord{TraceID: "t1", Stage: domain.StageRender, Timestamp: time.Now()})

	recs := b.ByTraceID("t1")
	require.Len(t, recs, 2)
	assert.Equal(t, domain.StageInbound, recs[0].Stage)
	assert.Equal(t, domain.StageRender, recs[1].Stage)
}

func TestBufferWrapsAtCapacity(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Record(domain.TraceRecord{TraceID: fmt.Sprintf("t%d", i), Timestamp: time.Now()})
	}
	assert.Empty(t, b.ByTraceID("t0"), "expected the oldest two records to have been overwritten")
	assert.Len(t, b.ByTraceID("t4"), 1, "expected the most recent record to still be present")
}

func TestRecentReturnsBoundedCount(t *testing.T) {
	b := New(200)
	for i := 0; i < 5; i++ {
		b.Record(domain.TraceRecord{TraceID: fmt.Sprintf("t%d", i), Intent: "query_schedule", Timestamp: time.Now()})
	}
	recent := b.Recent(3)
	assert.Len(t, recent, 3)
}
