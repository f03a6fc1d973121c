package wsconn

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/websocket"
)

// DefaultReadLimit bounds a single inbound frame.
const DefaultReadLimit = 1 << 20

// CoderDialer dials with github.com/coder/websocket.
type CoderDialer struct {
	Options *websocket.DialOptions
	// ReadLimit overrides DefaultReadLimit when positive.
	ReadLimit int64
}

// Dial implements Dialer.
func (d CoderDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, d.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	c.SetReadLimit(limit)
	return &coderConn{conn: c}, nil
}

type coderConn struct {
	conn *websocket.Conn
}

func (c *coderConn) Read(ctx context.Context) (string, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return "", mapCoderError(err)
	}
	return string(data), nil
}

func (c *coderConn) Write(ctx context.Context, payload string) error {
	return mapCoderError(c.conn.Write(ctx, websocket.MessageText, []byte(payload)))
}

func (c *coderConn) Close(code StatusCode, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}

func mapCoderError(err error) error {
	if err == nil {
		return nil
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: StatusCode(ce.Code), Reason: ce.Reason}
	}
	return err
}
