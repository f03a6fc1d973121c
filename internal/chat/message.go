package chat

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in the conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Streaming bool      `json:"streaming,omitempty"`
}

// NewMessage returns a message with a fresh id stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

const echoPrefix = "Echo:"

// stripEcho removes the echo server's "Echo:" prefix and the spaces after it.
func stripEcho(s string) string {
	if !strings.HasPrefix(s, echoPrefix) {
		return s
	}
	return strings.TrimLeftFunc(s[len(echoPrefix):], unicode.IsSpace)
}
