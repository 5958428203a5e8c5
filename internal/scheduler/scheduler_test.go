package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rivet-dev/actor-core/internal/persist"
)

func ev(ms int64) persist.ScheduledEvent {
	return persist.ScheduledEvent{TimestampMS: ms}
}

func TestInsertSortedKeepsOrder(t *testing.T) {
	events := []persist.ScheduledEvent{ev(100), ev(300)}

	out, earliest := InsertSorted(events, ev(200))
	require.False(t, earliest)
	require.Equal(t, []int64{100, 200, 300}, timestamps(out))
}

func TestInsertSortedReportsNewEarliest(t *testing.T) {
	events := []persist.ScheduledEvent{ev(300)}

	out, earliest := InsertSorted(events, ev(100))
	require.True(t, earliest)
	require.Equal(t, []int64{100, 300}, timestamps(out))
}

func TestInsertSortedTiesKeepInsertionOrder(t *testing.T) {
	events := []persist.ScheduledEvent{{TimestampMS: 100, EventID: "a"}}

	out, _ := InsertSorted(events, persist.ScheduledEvent{TimestampMS: 100, EventID: "b"})
	require.Equal(t, "a", out[0].EventID)
	require.Equal(t, "b", out[1].EventID)
}

func TestInsertSortedIntoEmpty(t *testing.T) {
	out, earliest := InsertSorted(nil, ev(100))
	require.True(t, earliest)
	require.Len(t, out, 1)
}

func TestSplitDueSeparatesPastEvents(t *testing.T) {
	now := time.UnixMilli(1000)
	events := []persist.ScheduledEvent{ev(250), ev(750), ev(1250)}

	due, remaining := SplitDue(events, now)
	require.Equal(t, []int64{250, 750}, timestamps(due))
	require.Equal(t, []int64{1250}, timestamps(remaining))
}

func TestSplitDueNoneDue(t *testing.T) {
	now := time.UnixMilli(0)
	events := []persist.ScheduledEvent{ev(100)}

	due, remaining := SplitDue(events, now)
	require.Empty(t, due)
	require.Len(t, remaining, 1)
}

func TestSplitDueAllDue(t *testing.T) {
	now := time.UnixMilli(1000)
	events := []persist.ScheduledEvent{ev(100), ev(200)}

	due, remaining := SplitDue(events, now)
	require.Len(t, due, 2)
	require.Empty(t, remaining)
}

func timestamps(events []persist.ScheduledEvent) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.TimestampMS
	}
	return out
}
