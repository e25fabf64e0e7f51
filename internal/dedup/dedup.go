// Package dedup implements client-side duplicate detection for the event
// log. The transport is at-least-once and the persisted log is fetched
// separately from the live stream, so every consumer reconciles the two with
// the rules here. There is no server-side source of truth: identity is soft,
// keyed by persisted id when available and by field heuristics otherwise.
package dedup

import (
	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/pkg/metrics"
)

// SystemEventDedupWindow is the tolerance, in milliseconds, within which two
// non-join system events with identical content are treated as redeliveries
// of one event.
const SystemEventDedupWindow int64 = 1000

// Log is a per-consumer ordered, deduplicated collection of events. Entries
// keep insertion order; the layer assumes near-real-time delivery where
// insertion order and timestamp order coincide, and tolerates rare
// inversions rather than re-sorting on every insert.
type Log []model.Event

// Merge reconciles one incoming event into the log and returns the result.
// The input slice is never mutated in place: a duplicate returns the log
// unchanged (save for an optional id back-fill on a copy) and a new event is
// appended. Existing entries always keep their relative order.
func Merge(log Log, incoming model.Event) Log {
	for i, existing := range log {
		rule, dup := duplicate(existing, incoming)
		if !dup {
			continue
		}

		metrics.EventsDeduplicatedTotal.WithLabelValues(rule).Inc()

		// The existing entry wins, but a duplicate that first supplies a
		// persisted id improves future id matching.
		if existing.ID == "" && incoming.ID != "" {
			out := make(Log, len(log))
			copy(out, log)
			out[i].ID = incoming.ID
			return out
		}
		return log
	}

	out := make(Log, len(log)+1)
	copy(out, log)
	out[len(log)] = incoming
	return out
}

// MergeAll merges a batch of events in order.
func MergeAll(log Log, incoming []model.Event) Log {
	for _, evt := range incoming {
		log = Merge(log, evt)
	}
	return log
}

// SuppressSelfJoin reports whether the event is a join notification about the
// local participant. Those are informational for other participants only and
// must be discarded before the merge step.
func SuppressSelfJoin(evt model.Event, local model.Identity) bool {
	return evt.IsSystem() &&
		evt.SystemType == model.SystemJoin &&
		evt.ParticipantID == local.ParticipantID
}

// duplicate applies the identity rules in order of preference and returns the
// matching rule name for instrumentation.
func duplicate(existing, incoming model.Event) (string, bool) {
	// Rule 1: both carry a persisted id and they agree.
	if existing.ID != "" && incoming.ID != "" && existing.ID == incoming.ID {
		return "id", true
	}

	// Distinct persisted ids mean two durable rows. That rules out the
	// field-equality and redelivery-window heuristics, but not join
	// coalescing, which collapses separately persisted joins too.
	distinctIDs := existing.ID != "" && incoming.ID != ""

	// Rule 2: exact timestamp + content + participant match.
	if !distinctIDs &&
		existing.Timestamp == incoming.Timestamp &&
		existing.Content == incoming.Content &&
		existing.ParticipantID == incoming.ParticipantID {
		return "field", true
	}

	if !existing.IsSystem() || !incoming.IsSystem() {
		return "", false
	}
	if existing.SystemType != incoming.SystemType {
		return "", false
	}

	// Rule 3: join events coalesce on participant + derived content,
	// ignoring timestamp. A participant may legitimately rejoin, but
	// repeat joins collapse to one entry wherever they sit in the log.
	if incoming.SystemType == model.SystemJoin {
		if existing.ParticipantID == incoming.ParticipantID &&
			existing.Content == incoming.Content {
			return "join", true
		}
		return "", false
	}

	// Rule 4: other system events within the tolerance window absorb
	// near-simultaneous redelivery without a shared id.
	if !distinctIDs &&
		existing.Content == incoming.Content &&
		absDiff(existing.Timestamp, incoming.Timestamp) <= SystemEventDedupWindow {
		return "window", true
	}

	return "", false
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
