package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// StatusCode is a WebSocket close status code.
type StatusCode int

// Close codes used by the manager. Other codes pass through unchanged.
const (
	StatusNormalClosure   StatusCode = 1000
	StatusGoingAway       StatusCode = 1001
	StatusAbnormalClosure StatusCode = 1006
)

// ErrInvalidURL is returned by Connect for endpoints that can never be dialed.
var ErrInvalidURL = errors.New("invalid websocket url")

// Conn defines the interface for a WebSocket connection.
// This abstraction enables testing with mock connections.
type Conn interface {
	// Read blocks until the next text frame arrives.
	// A close frame from the peer is returned as *CloseError.
	Read(ctx context.Context) (string, error)

	// Write sends a single text frame.
	Write(ctx context.Context, payload string) error

	// Close closes the connection with a status code and reason.
	Close(code StatusCode, reason string) error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f(ctx, url).
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// CloseError reports a close frame received from the peer.
type CloseError struct {
	Code   StatusCode
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket closed: status = %d reason = %q", e.Code, e.Reason)
}

// CloseStatus returns the close code carried by err, or -1 if err does not
// wrap a *CloseError.
func CloseStatus(err error) StatusCode {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}

// CloseEvent describes the end of a transport.
type CloseEvent struct {
	Code   StatusCode
	Reason string
	// Err is the transport error that ended the connection, if any.
	Err error
}

// WasClean reports whether the peer closed with a normal closure code.
func (e CloseEvent) WasClean() bool {
	return e.Code == StatusNormalClosure
}

func closeEventFrom(err error) CloseEvent {
	var ce *CloseError
	if errors.As(err, &ce) {
		return CloseEvent{Code: ce.Code, Reason: ce.Reason}
	}
	return CloseEvent{Code: StatusAbnormalClosure, Err: err}
}

// ValidateURL checks that raw is an absolute ws:// or wss:// URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// DefaultConversation is used when no conversation id is given.
const DefaultConversation = "default"

// EndpointURL builds the chat channel address for one conversation:
// <base>/chat/ws/<conversationID>.
func EndpointURL(base, conversationID string) (string, error) {
	if err := ValidateURL(base); err != nil {
		return "", err
	}
	if conversationID == "" {
		conversationID = DefaultConversation
	}
	return url.JoinPath(base, "chat", "ws", conversationID)
}
