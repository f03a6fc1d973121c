package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Handler processes IPC requests and returns responses.
type Handler func(req Request) Response

// Server is a unix socket IPC server.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    Handler
	log        *zap.Logger
	wg         sync.WaitGroup
	closed     chan struct{}
	closeOnce  sync.Once
}

// NewServer listens on socketPath, replacing a stale socket file.
// A nil logger discards.
func NewServer(socketPath string, handler Handler, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Ensure parent directory exists
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	// A live server owns the socket; anything else is left over from a crash.
	if IsRunningAt(socketPath) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, socketPath)
	}
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create unix socket: %w", err)
	}

	// Set socket permissions to owner-only
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		listener:   listener,
		handler:    handler,
		log:        logger.Named("ipc"),
		closed:     make(chan struct{}),
	}, nil
}

// Serve accepts connections until Close is called or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.closed:
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return fmt.Errorf("accept error: %w", err)
			}
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn processes a single client connection.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	// Unblock reads on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.closed:
			_ = conn.Close()
		case <-done:
		}
	}()

	reader := bufio.NewReader(conn)
	for {
		// Read newline-delimited JSON
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// EOF means client closed connection normally.
			// net.ErrClosed occurs during server shutdown.
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Warn("unexpected read error", zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := s.writeResponse(conn, ErrorResponse("invalid request format")); err != nil {
				return
			}
			continue
		}

		s.log.Debug("request", zap.String("cmd", req.Cmd))
		if err := s.writeResponse(conn, s.handler(req)); err != nil {
			return
		}
	}
}

// writeResponse sends a JSON response to the client.
func (s *Server) writeResponse(conn net.Conn, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

// SocketPath returns the path to the unix socket.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Close stops the server, waits for open connections and removes the
// socket file. Safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.listener.Close()
		s.wg.Wait()
		// Clean up socket file
		_ = os.Remove(s.socketPath)
	})
	return err
}

// DefaultSocketPath returns the socket path under XDG_RUNTIME_DIR, or a
// per-user directory in /tmp.
func DefaultSocketPath() string {
	// Try XDG_RUNTIME_DIR first
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "aide", "aide.sock")
	}

	// Fallback to /tmp/aide-<uid>/
	return filepath.Join(fmt.Sprintf("/tmp/aide-%d", os.Getuid()), "aide.sock")
}
