// Package ipc is the local control channel of a running chat session:
// newline-delimited JSON over a unix socket.
package ipc

import (
	"encoding/json"
)

// Commands understood by a chat session.
const (
	CmdStatus     = "status"
	CmdReconnect  = "reconnect"
	CmdDisconnect = "disconnect"
)

// Request is a command sent from the CLI to a running session.
type Request struct {
	Cmd    string          `json:"cmd"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the session's reply.
type Response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// StatusData is the response data for the "status" command.
type StatusData struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid,omitempty"`
	Conversation string `json:"conversation"`
	Status       string `json:"status"`
	State        string `json:"state"`
	URL          string `json:"url,omitempty"`
	Attempts     int    `json:"attempts"`
	Messages     int    `json:"messages"`
	Typing       bool   `json:"typing,omitempty"`
}

// SuccessResponse creates a successful response with the given data.
func SuccessResponse(data any) Response {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return ErrorResponse("internal error: failed to marshal response")
		}
	}
	return Response{OK: true, Data: raw}
}

// ErrorResponse creates an error response with the given message.
func ErrorResponse(msg string) Response {
	return Response{OK: false, Error: msg}
}
