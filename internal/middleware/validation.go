package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ValidateMessageContent validates outbound message content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateParticipantID validates a participant id.
func ValidateParticipantID(id string) error {
	if len(id) == 0 {
		return errors.New("participant ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("participant ID exceeds maximum length")
	}
	return nil
}

// ValidateExamID validates an exam session id.
func ValidateExamID(id string) error {
	if len(id) == 0 {
		return errors.New("exam ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("exam ID exceeds maximum length")
	}
	return nil
}
