package wsconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const gorillaCloseWait = time.Second

// GorillaDialer dials with github.com/gorilla/websocket.
type GorillaDialer struct {
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// ReadLimit overrides DefaultReadLimit when positive.
	ReadLimit int64
}

// Dial implements Dialer.
func (d GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	c.SetReadLimit(limit)
	return &gorillaConn{conn: c}, nil
}

// gorillaConn serializes writers; gorilla allows one concurrent writer.
type gorillaConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *gorillaConn) Read(ctx context.Context) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", mapGorillaError(err)
	}
	return string(data), nil
}

func (c *gorillaConn) Write(ctx context.Context, payload string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}
	return mapGorillaError(c.conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func (c *gorillaConn) Close(code StatusCode, reason string) error {
	msg := websocket.FormatCloseMessage(int(code), reason)
	werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(gorillaCloseWait))
	cerr := c.conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return werr
	}
	return cerr
}

func mapGorillaError(err error) error {
	if err == nil {
		return nil
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: StatusCode(ce.Code), Reason: ce.Text}
	}
	return err
}
