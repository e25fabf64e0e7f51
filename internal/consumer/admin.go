package consumer

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/examportal/realtime-platform/internal/dedup"
	"github.com/examportal/realtime-platform/internal/history"
	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/internal/realtime"
	"github.com/examportal/realtime-platform/pkg/logger"
	"github.com/examportal/realtime-platform/pkg/metrics"
)

// SelectionAll selects every conversation in the admin console.
const SelectionAll = "all"

// Conversation is one participant's slice of the support log, as shown in
// the admin console sidebar. It is a projection recomputed from the event
// log on demand, never stored independently.
type Conversation struct {
	ParticipantID string
	DisplayName   string
	Events        dedup.Log
}

// AdminConsole is the admin multi-conversation view over the support
// channel: the full deduplicated log partitioned by non-admin participant.
type AdminConsole struct {
	conn   Conn
	source history.Source
	rec    *history.Reconciler
	local  model.Identity
	limit  int
	log    *logger.Logger

	subs []realtime.Subscription
}

// NewAdminConsole creates the admin console view. local is the admin's own
// identity, used for join payloads and self-origin suppression.
func NewAdminConsole(conn Conn, source history.Source, local model.Identity, limit int, log *logger.Logger) *AdminConsole {
	return &AdminConsole{
		conn:   conn,
		source: source,
		rec:    history.NewReconciler(),
		local:  local,
		limit:  limit,
		log:    log,
	}
}

// Start joins the support channel, subscribes to its push events and loads
// the historical snapshot. Pushes that arrive before the snapshot resolves
// are buffered by the reconciler. A failed fetch degrades to live-only.
func (c *AdminConsole) Start(ctx context.Context) error {
	room := realtime.SupportChatRoom()
	c.conn.Join(room, c.local)

	for _, event := range []string{realtime.EventSupportMessage, realtime.EventSupportSystemEvent} {
		sub, err := c.conn.Subscribe(room, event, c.handleEvent)
		if err != nil {
			unsubscribeAll(c.subs)
			return err
		}
		c.subs = append(c.subs, sub)
	}

	snapshot, err := c.source.Fetch(ctx, room, c.limit, "")
	if err != nil {
		c.log.Error("history fetch failed, proceeding with live events only", zap.Error(err))
		snapshot = nil
	}
	c.rec.Install(snapshot)

	metrics.ConsumersActive.WithLabelValues("admin_console").Inc()
	return nil
}

// Stop disposes this console's subscriptions. The shared connection and the
// support channel membership are untouched.
func (c *AdminConsole) Stop() {
	unsubscribeAll(c.subs)
	c.subs = nil
	metrics.ConsumersActive.WithLabelValues("admin_console").Dec()
}

func (c *AdminConsole) handleEvent(evt model.Event) {
	if !accept(evt, c.local) {
		return
	}
	c.rec.Push(evt)
}

// Log returns the full deduplicated support log.
func (c *AdminConsole) Log() dedup.Log {
	return c.rec.Log()
}

// Reply sends an admin message addressed to one participant's conversation.
func (c *AdminConsole) Reply(content, participantID string) {
	c.conn.SendMessage(model.OutboundMessage{
		Content:            content,
		ParticipantID:      c.local.ParticipantID,
		Role:               c.local.Role,
		DisplayName:        c.local.DisplayName,
		ConversationTarget: participantID,
	})
}

// Conversations partitions the log by non-admin participant identity. Admin
// messages land in the partition their conversation target names; system
// events land in the partition of the participant they are tagged with.
func (c *AdminConsole) Conversations() []Conversation {
	log := c.rec.Log()

	grouped := lo.GroupBy(
		lo.Filter(log, func(evt model.Event, _ int) bool {
			return partitionKey(evt) != ""
		}),
		func(evt model.Event) string { return partitionKey(evt) },
	)

	conversations := make([]Conversation, 0, len(grouped))
	for participantID, events := range grouped {
		conversations = append(conversations, Conversation{
			ParticipantID: participantID,
			DisplayName:   displayNameFor(events, participantID),
			Events:        events,
		})
	}
	return conversations
}

// Events returns the log filtered by the console's selection: SelectionAll
// for the unfiltered log, or a participant id for that conversation (the
// participant's events, admin replies targeting them, and system events
// tagged with them).
func (c *AdminConsole) Events(selection string) dedup.Log {
	log := c.rec.Log()
	if selection == "" || selection == SelectionAll {
		return log
	}

	return lo.Filter(log, func(evt model.Event, _ int) bool {
		if evt.Role == model.RoleAdmin {
			return evt.ConversationTarget == selection
		}
		return evt.ParticipantID == selection
	})
}

// partitionKey maps an event to the non-admin participant it belongs to, or
// "" when it belongs to no single conversation.
func partitionKey(evt model.Event) string {
	if evt.Role == model.RoleAdmin {
		return evt.ConversationTarget
	}
	return evt.ParticipantID
}

func displayNameFor(events dedup.Log, participantID string) string {
	for _, evt := range events {
		if evt.ParticipantID == participantID && evt.DisplayName != "" {
			return evt.DisplayName
		}
	}
	return participantID
}
