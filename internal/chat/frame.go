package chat

import (
	"encoding/json"
	"strings"
)

// Inbound frame types sent by the chat server.
const (
	frameTyping          = "typing"
	frameChunk           = "message_chunk"
	frameComplete        = "message_complete"
	frameError           = "error"
	frameSettingsUpdated = "settings_updated"
)

// Outbound frame types.
const (
	frameMessage        = "message"
	frameSettingsUpdate = "settings_update"
)

// frame is the union of the server's JSON frames.
type frame struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	IsTyping   bool   `json:"is_typing"`
	IsComplete bool   `json:"is_complete"`
	Message    string `json:"message"`
}

// decodeFrame parses payload as a known JSON frame. ok is false for plain
// text and for JSON of an unknown type.
func decodeFrame(payload string) (f frame, ok bool) {
	s := strings.TrimSpace(payload)
	if !strings.HasPrefix(s, "{") {
		return frame{}, false
	}
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return frame{}, false
	}
	switch f.Type {
	case frameTyping, frameChunk, frameComplete, frameError, frameSettingsUpdated:
		return f, true
	}
	return frame{}, false
}

type outboundContext struct {
	ProjectID string `json:"project_id,omitempty"`
}

type outbound struct {
	Type    string           `json:"type"`
	Content string           `json:"content,omitempty"`
	Context *outboundContext `json:"context,omitempty"`
}

func encodeMessage(content, projectID string) string {
	out := outbound{Type: frameMessage, Content: content}
	if projectID != "" {
		out.Context = &outboundContext{ProjectID: projectID}
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func encodeSettingsUpdate() string {
	b, _ := json.Marshal(outbound{Type: frameSettingsUpdate})
	return string(b)
}
