package middleware

import (
	"errors"

	"github.com/google/uuid"
)

// ParseConversationID parses a conversation ID path parameter.
func ParseConversationID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, errors.New("invalid conversation ID format")
	}
	return parsed, nil
}

// ParseUserID parses a caller supplied user ID.
func ParseUserID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed == uuid.Nil {
		return uuid.Nil, errors.New("invalid user ID format")
	}
	return parsed, nil
}
