package consumer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/internal/realtime"
	"github.com/examportal/realtime-platform/pkg/logger"
)

// relay replays a recorded outbound message to every subscriber, the way the
// server echoes support messages back to the room.
func relay(conn *fakeConn, msg model.OutboundMessage, id string, ts int64) {
	conn.push(realtime.SupportChatRoom(), realtime.EventSupportMessage, model.Event{
		ID:                 id,
		Kind:               model.KindMessage,
		ParticipantID:      msg.ParticipantID,
		Role:               msg.Role,
		DisplayName:        msg.DisplayName,
		Content:            msg.Content,
		ConversationTarget: msg.ConversationTarget,
		Timestamp:          ts,
	})
}

func TestSupportChat_StudentAndAdminRoundTrip(t *testing.T) {
	req := require.New(t)

	conn := newFakeConn()

	student := NewChatView(conn, &fakeSource{}, studentIdentity, 100, logger.NewNop())
	req.NoError(student.Start(context.Background()))
	defer student.Stop()

	admin := NewAdminConsole(conn, &fakeSource{}, adminIdentity, 100, logger.NewNop())
	req.NoError(admin.Start(context.Background()))
	defer admin.Stop()

	// Student sends; the server persists and echoes to the room.
	student.Send("Xin chào")
	req.Len(conn.sent, 1)
	relay(conn, conn.sent[0], "evt-1", 1000)

	conversations := admin.Conversations()
	req.Len(conversations, 1)
	req.Equal(studentIdentity.ParticipantID, conversations[0].ParticipantID)
	req.Equal("Student A", conversations[0].DisplayName)
	req.Len(conversations[0].Events, 1)
	req.Equal("Xin chào", conversations[0].Events[0].Content)

	// Admin replies to that conversation.
	admin.Reply("Chào bạn!", studentIdentity.ParticipantID)
	req.Len(conn.sent, 2)
	relay(conn, conn.sent[1], "evt-2", 2000)

	// Both surfaces converge on the same two-message conversation.
	req.Len(admin.Events(studentIdentity.ParticipantID), 2)

	messages := student.Messages()
	req.Len(messages, 2)
	req.True(messages[0].IsOwn)
	req.Equal("Chào bạn!", messages[1].Content)
	req.False(messages[1].IsOwn)
}
