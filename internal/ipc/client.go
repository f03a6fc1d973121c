package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

var (
	// ErrNotRunning is returned when no chat session is listening.
	ErrNotRunning = errors.New("no aide chat session is running")
	// ErrAlreadyRunning is returned when another session owns the socket.
	ErrAlreadyRunning = errors.New("an aide chat session is already running")
)

// Client is a unix socket IPC client.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the session at the default socket path.
func Dial() (*Client, error) {
	return DialPath(DefaultSocketPath())
}

// DialPath connects to the session at socketPath.
func DialPath(socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotRunning
	}

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRunning, err)
	}

	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// Send sends a request and returns the response.
func (c *Client) Send(req Request) (Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("failed to send request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp, nil
}

// SendCmd sends a command without parameters.
func (c *Client) SendCmd(cmd string) (Response, error) {
	return c.Send(Request{Cmd: cmd})
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// IsRunning reports whether a session listens on the default socket.
func IsRunning() bool {
	return IsRunningAt(DefaultSocketPath())
}

// IsRunningAt reports whether a session listens on socketPath.
func IsRunningAt(socketPath string) bool {
	if _, err := os.Stat(socketPath); errors.Is(err, os.ErrNotExist) {
		return false
	}
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
