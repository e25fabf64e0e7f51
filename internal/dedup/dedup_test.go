package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/examportal/realtime-platform/internal/model"
)

func chatMsg(id, participant, content string, ts int64) model.Event {
	return model.Event{
		ID:            id,
		Kind:          model.KindMessage,
		ParticipantID: participant,
		Role:          model.RoleStudent,
		DisplayName:   "Student",
		Content:       content,
		Timestamp:     ts,
	}
}

func systemEvt(subtype model.SystemType, participant, content string, ts int64) model.Event {
	return model.Event{
		Kind:          model.KindSystem,
		SystemType:    subtype,
		ParticipantID: participant,
		Content:       content,
		Timestamp:     ts,
	}
}

func TestMerge_DedupByID(t *testing.T) {
	req := require.New(t)

	log := Merge(nil, chatMsg("evt-1", "a", "hello", 1000))
	log = Merge(log, chatMsg("evt-1", "a", "hello", 1000))

	req.Len(log, 1)
}

func TestMerge_DistinctIDsNeverCollapseMessages(t *testing.T) {
	req := require.New(t)

	// Same fields, different durable ids: two distinct persisted messages.
	log := Merge(nil, chatMsg("evt-1", "a", "hello", 1000))
	log = Merge(log, chatMsg("evt-2", "a", "hello", 1000))

	req.Len(log, 2)
}

func TestMerge_JoinCoalescingAcrossPersistedRows(t *testing.T) {
	req := require.New(t)

	// History rows always carry ids, so repeated joins from a snapshot are
	// separately persisted rows. They still collapse to one entry.
	content := model.JoinContent("Student A")

	first := systemEvt(model.SystemJoin, "a", content, 1000)
	first.ID = "row-1"
	second := systemEvt(model.SystemJoin, "a", content, 7200000)
	second.ID = "row-2"

	log := Merge(nil, first)
	log = Merge(log, second)

	req.Len(log, 1)
	req.Equal("row-1", log[0].ID)
}

func TestMerge_WindowDoesNotCrossPersistedRows(t *testing.T) {
	req := require.New(t)

	// Two durable info rows inside the tolerance window are distinct events,
	// not a redelivery.
	first := systemEvt(model.SystemInfo, "a", "exam paused", 10000)
	first.ID = "row-1"
	second := systemEvt(model.SystemInfo, "b", "exam paused", 10500)
	second.ID = "row-2"

	log := Merge(nil, first)
	log = Merge(log, second)

	req.Len(log, 2)
}

func TestMerge_DedupByFields(t *testing.T) {
	req := require.New(t)

	base := chatMsg("", "a", "hello", 1000)

	log := Merge(nil, base)
	log = Merge(log, base)
	req.Len(log, 1)

	changed := base
	changed.Content = "hello!"
	log = Merge(log, changed)
	req.Len(log, 2)

	changed = base
	changed.Timestamp = 1001
	log = Merge(log, changed)
	req.Len(log, 3)

	changed = base
	changed.ParticipantID = "b"
	log = Merge(log, changed)
	req.Len(log, 4)
}

func TestMerge_JoinCoalescing(t *testing.T) {
	req := require.New(t)

	content := model.JoinContent("Student A")
	log := Merge(nil, systemEvt(model.SystemJoin, "a", content, 1000))

	// Different timestamp, same participant and derived content: coalesced.
	log = Merge(log, systemEvt(model.SystemJoin, "a", content, 99000))
	req.Len(log, 1)

	// Different participant with the same rendered name: kept.
	log = Merge(log, systemEvt(model.SystemJoin, "b", content, 1000))
	req.Len(log, 2)
}

func TestMerge_SystemEventWindow(t *testing.T) {
	req := require.New(t)

	log := Merge(nil, systemEvt(model.SystemInfo, "a", "exam paused", 10000))

	// 500ms apart: absorbed as redelivery.
	log = Merge(log, systemEvt(model.SystemInfo, "b", "exam paused", 10500))
	req.Len(log, 1)

	// 1500ms apart: a genuinely new event.
	log = Merge(log, systemEvt(model.SystemInfo, "b", "exam paused", 11500))
	req.Len(log, 2)
}

func TestMerge_WindowDoesNotCrossSubtypes(t *testing.T) {
	req := require.New(t)

	log := Merge(nil, systemEvt(model.SystemInfo, "a", "flagged", 10000))
	log = Merge(log, systemEvt(model.SystemCheating, "a", "flagged", 10200))

	req.Len(log, 2)
}

func TestMerge_IDBackfill(t *testing.T) {
	req := require.New(t)

	live := chatMsg("", "a", "hello", 1000)
	log := Merge(nil, live)

	persisted := chatMsg("evt-1", "a", "hello", 1000)
	log = Merge(log, persisted)

	req.Len(log, 1)
	req.Equal("evt-1", log[0].ID)

	// The back-filled id now participates in rule-1 matching.
	log = Merge(log, chatMsg("evt-1", "a", "hello", 2000))
	req.Len(log, 1)
}

func TestMerge_PreservesInsertionOrder(t *testing.T) {
	req := require.New(t)

	var log Log
	// Timestamps arrive inverted; the log keeps arrival order.
	log = Merge(log, chatMsg("", "a", "second", 2000))
	log = Merge(log, chatMsg("", "a", "first", 1000))

	req.Len(log, 2)
	req.Equal("second", log[0].Content)
	req.Equal("first", log[1].Content)
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	req := require.New(t)

	original := Log{chatMsg("", "a", "hello", 1000)}
	snapshot := make(Log, len(original))
	copy(snapshot, original)

	_ = Merge(original, chatMsg("evt-1", "a", "hello", 1000))

	req.Equal(snapshot, original)
}

func TestMergeAll(t *testing.T) {
	req := require.New(t)

	batch := []model.Event{
		chatMsg("evt-1", "a", "one", 1000),
		chatMsg("evt-2", "a", "two", 2000),
		chatMsg("evt-1", "a", "one", 1000),
	}

	log := MergeAll(nil, batch)
	req.Len(log, 2)
}

func TestSuppressSelfJoin(t *testing.T) {
	req := require.New(t)

	local := model.Identity{ParticipantID: "me", Role: model.RoleAdmin}

	own := systemEvt(model.SystemJoin, "me", model.JoinContent("Me"), 1000)
	req.True(SuppressSelfJoin(own, local))

	other := systemEvt(model.SystemJoin, "them", model.JoinContent("Them"), 1000)
	req.False(SuppressSelfJoin(other, local))

	// Chat messages from the local participant are never suppressed.
	msg := chatMsg("", "me", "hello", 1000)
	req.False(SuppressSelfJoin(msg, local))
}
