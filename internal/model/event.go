// Package model defines data structures for the realtime event layer.
package model

import (
	"fmt"
	"strings"
)

// Role represents the role a participant presents when joining a room.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
	RoleProctor Role = "proctor"
)

// Kind discriminates the event union.
type Kind string

const (
	KindMessage Kind = "message"
	KindSystem  Kind = "system"
)

// SystemType is the subtype of a system event.
type SystemType string

const (
	SystemJoin     SystemType = "join"
	SystemInfo     SystemType = "info"
	SystemCheating SystemType = "cheating"
)

// Severity grades a monitoring event.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Identity is the tuple a participant presents when joining a room.
type Identity struct {
	ParticipantID string `json:"participant_id"`
	Role          Role   `json:"role"`
	DisplayName   string `json:"display_name"`
}

// Event is the tagged union of chat messages and system events.
//
// ID is the persisted storage id; live-pushed events may lack one until the
// row is written, so duplicate detection cannot rely on it alone.
// Timestamp is epoch milliseconds throughout the layer.
type Event struct {
	ID            string     `json:"id,omitempty"`
	Kind          Kind       `json:"kind"`
	SystemType    SystemType `json:"system_type,omitempty"`
	ParticipantID string     `json:"participant_id"`
	Role          Role       `json:"role,omitempty"`
	DisplayName   string     `json:"display_name,omitempty"`
	Content       string     `json:"content"`

	// ConversationTarget addresses an admin reply to one participant.
	ConversationTarget string `json:"conversation_target,omitempty"`

	// Monitoring fields, set only for cheating system events.
	EventType string   `json:"event_type,omitempty"`
	Severity  Severity `json:"severity,omitempty"`

	Timestamp int64 `json:"timestamp"`
}

// IsSystem reports whether the event is a system event.
func (e Event) IsSystem() bool {
	return e.Kind == KindSystem
}

// Malformed reports whether the event is missing required content and must be
// dropped before it reaches the dedup step.
func (e Event) Malformed() bool {
	return strings.TrimSpace(e.Content) == ""
}

// JoinContent derives the rendered content for a join system event.
func JoinContent(displayName string) string {
	return fmt.Sprintf("%s joined the chat", displayName)
}

// OutboundMessage is a message to send on the support channel.
type OutboundMessage struct {
	Content            string `json:"content"`
	ParticipantID      string `json:"participant_id"`
	Role               Role   `json:"role"`
	DisplayName        string `json:"display_name"`
	ConversationTarget string `json:"conversation_target,omitempty"`
}
