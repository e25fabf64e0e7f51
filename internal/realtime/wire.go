package realtime

import (
	"fmt"

	"github.com/examportal/realtime-platform/internal/model"
)

// RoomKind distinguishes the two logical room families.
type RoomKind string

const (
	RoomKindSupportChat    RoomKind = "support_chat"
	RoomKindExamMonitoring RoomKind = "exam_monitoring"
)

// Room identifies a logical channel on the shared connection.
type Room struct {
	Kind   RoomKind
	ExamID string
}

// SupportChatRoom returns the single support conversation room.
func SupportChatRoom() Room {
	return Room{Kind: RoomKindSupportChat}
}

// ExamMonitoringRoom returns the monitoring room for one exam session.
func ExamMonitoringRoom(examID string) Room {
	return Room{Kind: RoomKindExamMonitoring, ExamID: examID}
}

// Key returns the room key, e.g. "support_chat" or "exam_monitoring:42".
func (r Room) Key() string {
	if r.Kind == RoomKindExamMonitoring {
		return fmt.Sprintf("%s:%s", RoomKindExamMonitoring, r.ExamID)
	}
	return string(RoomKindSupportChat)
}

// Named push and control events carried over the transport.
const (
	EventSupportMessage      = "support_message"
	EventSupportSystemEvent  = "support_system_event"
	EventNewCheatingEvent    = "new_cheating_event"
	EventJoinSupportChat     = "join_support_chat"
	EventJoinExamMonitoring  = "join_exam_monitoring"
	EventLeaveExamMonitoring = "leave_exam_monitoring"
)

// SubjectPrefix is the prefix for all realtime subjects.
const SubjectPrefix = "rt"

// Subject returns the transport subject carrying a named event for a room.
func Subject(room Room, event string) string {
	if room.Kind == RoomKindExamMonitoring {
		return fmt.Sprintf("%s.exam_monitoring.%s.%s", SubjectPrefix, room.ExamID, event)
	}
	return fmt.Sprintf("%s.support_chat.%s", SubjectPrefix, event)
}

// ControlSubject returns the subject carrying a room control event.
func ControlSubject(event string) string {
	return fmt.Sprintf("%s.control.%s", SubjectPrefix, event)
}

// JoinPayload is sent when a participant joins a room. Identity is resent on
// every rejoin because the server keeps no membership state across physical
// connections.
type JoinPayload struct {
	Room     string         `json:"room"`
	Identity model.Identity `json:"identity"`
}

// LeavePayload is sent when a participant leaves a room.
type LeavePayload struct {
	Room          string `json:"room"`
	ParticipantID string `json:"participant_id"`
}
