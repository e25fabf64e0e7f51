package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/pkg/logger"
	"github.com/examportal/realtime-platform/pkg/metrics"
)

// Emitter is the slice of the connection the membership layer needs. The
// Manager is the production implementation; tests substitute a recorder.
type Emitter interface {
	Publish(subject string, v any) error
	IsConnected() bool
}

type memberState struct {
	room     Room
	identity model.Identity
}

// Membership tracks which rooms have been joined on the current physical
// connection. Join is idempotent per room per connection; joined flags reset
// on every disconnect so that each reconnect re-establishes server-side
// membership with exactly one join message per room. The server keeps no
// durable membership across physical connections, which is why the identity
// payload is resent every time.
type Membership struct {
	em  Emitter
	log *logger.Logger

	mu      sync.Mutex
	joined  map[string]memberState
	pending map[string]memberState
}

// NewMembership creates a membership layer over an emitter. Callers normally
// use Manager.Rooms() instead, which binds the lifecycle hooks for them.
func NewMembership(em Emitter, log *logger.Logger) *Membership {
	return newMembership(em, log)
}

func newMembership(em Emitter, log *logger.Logger) *Membership {
	return &Membership{
		em:      em,
		log:     log,
		joined:  make(map[string]memberState),
		pending: make(map[string]memberState),
	}
}

// Join joins a room with the given identity. Calling it while already joined
// on the current physical connection is a no-op. If the connection is not yet
// established the join is queued and fires exactly once on the next connect.
func (ms *Membership) Join(room Room, identity model.Identity) {
	key := room.Key()

	ms.mu.Lock()
	if _, ok := ms.joined[key]; ok {
		ms.mu.Unlock()
		return
	}

	st := memberState{room: room, identity: identity}
	if !ms.em.IsConnected() {
		// Queued; the pending map coalesces repeated calls into one send.
		ms.pending[key] = st
		ms.mu.Unlock()
		ms.log.Debug("join queued until connect", zap.String("room", key))
		return
	}

	ms.joined[key] = st
	delete(ms.pending, key)
	ms.mu.Unlock()

	ms.sendJoin(st)
}

// Leave leaves a room. Other rooms' membership is untouched. Only exam
// monitoring has a wire-level leave control event; for the support channel
// leaving is purely local.
func (ms *Membership) Leave(room Room) {
	key := room.Key()

	ms.mu.Lock()
	st, wasJoined := ms.joined[key]
	delete(ms.joined, key)
	delete(ms.pending, key)
	ms.mu.Unlock()

	if !wasJoined || room.Kind != RoomKindExamMonitoring {
		return
	}

	payload := LeavePayload{Room: key, ParticipantID: st.identity.ParticipantID}
	if err := ms.em.Publish(ControlSubject(EventLeaveExamMonitoring), payload); err != nil {
		ms.log.Warn("failed to send leave", zap.String("room", key), zap.Error(err))
	}
}

// Joined reports whether the room is joined on the current connection.
func (ms *Membership) Joined(room Room) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	_, ok := ms.joined[room.Key()]
	return ok
}

// handleConnect fires queued joins. Invoked on every successful connect,
// including reconnects, where the pending map holds the rooms that were
// joined on the previous physical connection.
func (ms *Membership) handleConnect() {
	ms.mu.Lock()
	flush := make([]memberState, 0, len(ms.pending))
	for key, st := range ms.pending {
		ms.joined[key] = st
		flush = append(flush, st)
	}
	ms.pending = make(map[string]memberState)
	ms.mu.Unlock()

	for _, st := range flush {
		ms.sendJoin(st)
	}
}

// handleDisconnect resets all joined flags. Skipping this reset would leave a
// stale "joined" state that silently drops every event for the room after a
// reconnect, so each joined room is moved back to pending instead.
func (ms *Membership) handleDisconnect() {
	ms.mu.Lock()
	for key, st := range ms.joined {
		ms.pending[key] = st
	}
	ms.joined = make(map[string]memberState)
	ms.mu.Unlock()
}

func (ms *Membership) sendJoin(st memberState) {
	event := EventJoinSupportChat
	if st.room.Kind == RoomKindExamMonitoring {
		event = EventJoinExamMonitoring
	}

	payload := JoinPayload{Room: st.room.Key(), Identity: st.identity}
	if err := ms.em.Publish(ControlSubject(event), payload); err != nil {
		ms.log.Warn("failed to send join", zap.String("room", st.room.Key()), zap.Error(err))
		// The server never saw this join. Leaving the joined flag set would
		// make every later Join a no-op and silently drop the room's events,
		// so the room goes back to pending for the next Join or connect.
		key := st.room.Key()
		ms.mu.Lock()
		if _, ok := ms.joined[key]; ok {
			delete(ms.joined, key)
			ms.pending[key] = st
		}
		ms.mu.Unlock()
		return
	}

	metrics.JoinsSentTotal.WithLabelValues(string(st.room.Kind)).Inc()
	ms.log.Info("joined room",
		zap.String("room", st.room.Key()),
		zap.String("participant_id", st.identity.ParticipantID),
	)
}
