// Package consumer composes the connection, room membership, history
// reconciliation and dedup layers into per-surface views.
package consumer

import (
	"github.com/examportal/realtime-platform/internal/dedup"
	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/internal/realtime"
	"github.com/examportal/realtime-platform/pkg/metrics"
)

// Conn is the slice of the shared connection a consumer uses. A consumer
// never closes the connection: stopping a consumer disposes its own
// subscriptions and, for exam monitoring, leaves its room.
type Conn interface {
	Subscribe(room realtime.Room, event string, handler func(model.Event)) (realtime.Subscription, error)
	SendMessage(msg model.OutboundMessage)
	Join(room realtime.Room, identity model.Identity)
	Leave(room realtime.Room)
}

// accept filters an incoming event before it reaches the merge step.
// Malformed events (no content) are dropped so a blank entry can never be
// inserted; join notifications about the local participant are suppressed.
func accept(evt model.Event, local model.Identity) bool {
	if evt.Malformed() {
		metrics.EventsMalformedTotal.Inc()
		return false
	}
	if dedup.SuppressSelfJoin(evt, local) {
		return false
	}
	return true
}

// unsubscribeAll disposes a consumer's own subscriptions, and only those.
func unsubscribeAll(subs []realtime.Subscription) {
	for _, s := range subs {
		if s != nil {
			_ = s.Unsubscribe()
		}
	}
}
