package model

// RawRecord is one row of the persisted conversation/event log as served by
// the history API.
type RawRecord struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	FullName    string `json:"full_name"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
	MessageType string `json:"message_type"`
}

// HistoryEnvelope is the history API response body.
type HistoryEnvelope struct {
	Data []RawRecord `json:"data"`
}

// Normalize maps a stored record onto the event union. A "system" record type
// becomes a system event, everything else a chat message. Join events are
// recognized by their derived content since storage keeps no subtype column.
func (r RawRecord) Normalize() Event {
	e := Event{
		ID:            r.ID,
		ParticipantID: r.UserID,
		Role:          Role(r.Role),
		DisplayName:   r.FullName,
		Content:       r.Content,
		Timestamp:     r.Timestamp,
	}

	switch r.MessageType {
	case "system":
		e.Kind = KindSystem
		if r.Content == JoinContent(r.FullName) {
			e.SystemType = SystemJoin
		} else {
			e.SystemType = SystemInfo
		}
	case "cheating":
		e.Kind = KindSystem
		e.SystemType = SystemCheating
	default:
		e.Kind = KindMessage
	}

	return e
}

// Denormalize maps an event back onto the storage record shape. Used by the
// gateway when persisting published events.
func Denormalize(e Event) RawRecord {
	messageType := "message"
	switch {
	case e.SystemType == SystemCheating:
		messageType = "cheating"
	case e.IsSystem():
		messageType = "system"
	}

	return RawRecord{
		ID:          e.ID,
		UserID:      e.ParticipantID,
		Role:        string(e.Role),
		FullName:    e.DisplayName,
		Content:     e.Content,
		Timestamp:   e.Timestamp,
		MessageType: messageType,
	}
}
