package consumer

import (
	"context"

	"go.uber.org/zap"

	"github.com/examportal/realtime-platform/internal/dedup"
	"github.com/examportal/realtime-platform/internal/history"
	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/internal/realtime"
	"github.com/examportal/realtime-platform/pkg/logger"
	"github.com/examportal/realtime-platform/pkg/metrics"
)

// DisplayMessage is one entry of the single-user chat view.
type DisplayMessage struct {
	model.Event

	// IsOwn marks the local participant's own messages. Both participant id
	// and role must match the local identity: two roles can coincidentally
	// share an identifier, and neither match alone is sufficient.
	IsOwn bool
}

// ChatView is the single-user support chat surface: one participant's
// conversation with the support team, no partitioning.
type ChatView struct {
	conn   Conn
	source history.Source
	rec    *history.Reconciler
	local  model.Identity
	limit  int
	log    *logger.Logger

	subs []realtime.Subscription
}

// NewChatView creates the single-user chat view for the local identity.
func NewChatView(conn Conn, source history.Source, local model.Identity, limit int, log *logger.Logger) *ChatView {
	return &ChatView{
		conn:   conn,
		source: source,
		rec:    history.NewReconciler(),
		local:  local,
		limit:  limit,
		log:    log,
	}
}

// Start joins the support channel, subscribes to its push events and loads
// the participant's conversation history.
func (c *ChatView) Start(ctx context.Context) error {
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

	snapshot, err := c.source.Fetch(ctx, room, c.limit, c.local.ParticipantID)
	if err != nil {
		c.log.Error("history fetch failed, proceeding with live events only", zap.Error(err))
		snapshot = nil
	}
	c.rec.Install(snapshot)

	metrics.ConsumersActive.WithLabelValues("chat_view").Inc()
	return nil
}

// Stop disposes this view's subscriptions only.
func (c *ChatView) Stop() {
	unsubscribeAll(c.subs)
	c.subs = nil
	metrics.ConsumersActive.WithLabelValues("chat_view").Dec()
}

func (c *ChatView) handleEvent(evt model.Event) {
	if !accept(evt, c.local) {
		return
	}
	c.rec.Push(evt)
}

// Send sends a message as the local participant. Empty content and
// disconnected transports are handled by the connection layer (no-op and
// drop-with-warning respectively).
func (c *ChatView) Send(content string) {
	c.conn.SendMessage(model.OutboundMessage{
		Content:       content,
		ParticipantID: c.local.ParticipantID,
		Role:          c.local.Role,
		DisplayName:   c.local.DisplayName,
	})
}

// Messages returns the conversation with own-message marking applied.
func (c *ChatView) Messages() []DisplayMessage {
	log := c.rec.Log()

	messages := make([]DisplayMessage, 0, len(log))
	for _, evt := range log {
		messages = append(messages, DisplayMessage{
			Event: evt,
			IsOwn: evt.ParticipantID == c.local.ParticipantID && evt.Role == c.local.Role,
		})
	}
	return messages
}

// Log returns the raw deduplicated log.
func (c *ChatView) Log() dedup.Log {
	return c.rec.Log()
}
