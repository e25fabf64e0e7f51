package consumer

import (
	"context"
	"sync"

	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/internal/realtime"
)

// fakeConn is an in-process stand-in for the shared connection.
type fakeConn struct {
	mu       sync.Mutex
	handlers map[string][]*fakeSub
	sent     []model.OutboundMessage
	joined   []string
	left     []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string][]*fakeSub)}
}

type fakeSub struct {
	conn    *fakeConn
	subject string
	handler func(model.Event)
	active  bool
}

func (s *fakeSub) Unsubscribe() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	s.active = false
	return nil
}

func (c *fakeConn) Subscribe(room realtime.Room, event string, handler func(model.Event)) (realtime.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subject := realtime.Subject(room, event)
	sub := &fakeSub{conn: c, subject: subject, handler: handler, active: true}
	c.handlers[subject] = append(c.handlers[subject], sub)
	return sub, nil
}

func (c *fakeConn) SendMessage(msg model.OutboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
}

func (c *fakeConn) Join(room realtime.Room, identity model.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, room.Key())
}

func (c *fakeConn) Leave(room realtime.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = append(c.left, room.Key())
}

// push simulates a server push for a named event on a room.
func (c *fakeConn) push(room realtime.Room, event string, evt model.Event) {
	c.mu.Lock()
	subs := append([]*fakeSub{}, c.handlers[realtime.Subject(room, event)]...)
	c.mu.Unlock()
	for _, s := range subs {
		if s.active {
			s.handler(evt)
		}
	}
}

func (c *fakeConn) activeSubs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, subs := range c.handlers {
		for _, s := range subs {
			if s.active {
				n++
			}
		}
	}
	return n
}

// fakeSource serves a canned snapshot, optionally failing, and optionally
// running a hook mid-fetch to model pushes racing the history request.
type fakeSource struct {
	snapshot   []model.Event
	err        error
	duringLoad func()
}

func (f *fakeSource) Fetch(ctx context.Context, room realtime.Room, limit int, userID string) ([]model.Event, error) {
	if f.duringLoad != nil {
		f.duringLoad()
	}
	return f.snapshot, f.err
}

var (
	adminIdentity = model.Identity{
		ParticipantID: "admin-1",
		Role:          model.RoleAdmin,
		DisplayName:   "Support Admin",
	}
	studentIdentity = model.Identity{
		ParticipantID: "student-a",
		Role:          model.RoleStudent,
		DisplayName:   "Student A",
	}
)

func studentMsg(id, content string, ts int64) model.Event {
	return model.Event{
		ID:            id,
		Kind:          model.KindMessage,
		ParticipantID: studentIdentity.ParticipantID,
		Role:          model.RoleStudent,
		DisplayName:   studentIdentity.DisplayName,
		Content:       content,
		Timestamp:     ts,
	}
}

func adminMsg(id, content, target string, ts int64) model.Event {
	return model.Event{
		ID:                 id,
		Kind:               model.KindMessage,
		ParticipantID:      adminIdentity.ParticipantID,
		Role:               model.RoleAdmin,
		DisplayName:        adminIdentity.DisplayName,
		Content:            content,
		ConversationTarget: target,
		Timestamp:          ts,
	}
}
