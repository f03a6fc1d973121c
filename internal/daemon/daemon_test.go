package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashwinachu030493/AIde/internal/chat"
	"github.com/Ashwinachu030493/AIde/internal/config"
	"github.com/Ashwinachu030493/AIde/internal/history"
	"github.com/Ashwinachu030493/AIde/internal/ipc"
	"github.com/Ashwinachu030493/AIde/internal/wsconn"
)

func init() {
	color.NoColor = true
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// chatServer answers every text frame with "Echo: <text>" and records the
// request paths it accepted.
type chatServer struct {
	*httptest.Server
	wg     sync.WaitGroup
	mu     sync.Mutex
	paths  []string
	active int
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	cs := &chatServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.wg.Add(1)
		defer cs.wg.Done()

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		cs.mu.Lock()
		cs.paths = append(cs.paths, r.URL.Path)
		cs.active++
		cs.mu.Unlock()
		defer func() {
			cs.mu.Lock()
			cs.active--
			cs.mu.Unlock()
		}()

		for {
			typ, data, err := c.Read(r.Context())
			if err != nil {
				return
			}
			if err := c.Write(r.Context(), typ, append([]byte("Echo: "), data...)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(func() {
		cs.Server.CloseClientConnections()
		cs.Server.Close()
		cs.wg.Wait()
	})
	return cs
}

func (cs *chatServer) wsURL() string {
	return "ws" + strings.TrimPrefix(cs.URL, "http")
}

func (cs *chatServer) open() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.active
}

func (cs *chatServer) seen() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.paths...)
}

// shortSocketPath keeps unix socket paths under the platform length limit.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "aide")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "aide.sock")
}

func testApp(t *testing.T, serverURL string) *config.Config {
	t.Helper()
	app := config.Default()
	app.Server.URL = serverURL
	app.Server.WireFormat = config.WireText
	app.Health.OnStart = false
	app.History.Path = filepath.Join(t.TempDir(), "history.db")
	app.Connection.BaseDelay = 10 * time.Millisecond
	app.Connection.MaxJitter = 0
	app.Connection.ConnectTimeout = 2 * time.Second
	return app
}

// startDaemon runs d until the test ends and waits for its control socket.
func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	require.Eventually(t, func() bool {
		return ipc.IsRunningAt(d.config.SocketPath)
	}, 5*time.Second, 10*time.Millisecond, "daemon did not start")
}

func sendCmd(t *testing.T, socketPath, cmd string) ipc.StatusData {
	t.Helper()
	client, err := ipc.DialPath(socketPath)
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.SendCmd(cmd)
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Error)

	var data ipc.StatusData
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	return data
}

func TestDaemon_ChatOverControlSocket(t *testing.T) {
	srv := newChatServer(t)
	app := testApp(t, srv.wsURL())
	out := &syncBuffer{}
	d := New(Config{App: app, SocketPath: shortSocketPath(t), Out: out})
	startDaemon(t, d)

	status := sendCmd(t, d.config.SocketPath, ipc.CmdStatus)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, "connected", status.Status)
	assert.Equal(t, "open", status.State)
	assert.Equal(t, wsconn.DefaultConversation, status.Conversation)
	assert.Equal(t, srv.wsURL()+"/chat/ws/default", status.URL)

	require.True(t, d.Send("hello"))
	require.Eventually(t, func() bool { return len(d.Messages()) == 2 }, 5*time.Second, 10*time.Millisecond)
	msgs := d.Messages()
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "assistant: hello") },
		time.Second, 10*time.Millisecond)

	status = sendCmd(t, d.config.SocketPath, ipc.CmdDisconnect)
	assert.Equal(t, "disconnected", status.Status)
	assert.Equal(t, "idle", status.State)
	assert.False(t, d.Send("dropped"))

	status = sendCmd(t, d.config.SocketPath, ipc.CmdReconnect)
	assert.Equal(t, "connected", status.Status)
	assert.Equal(t, 2, status.Messages)
}

func TestDaemon_RecordsHistory(t *testing.T) {
	srv := newChatServer(t)
	app := testApp(t, srv.wsURL())

	func() {
		ctx, cancel := context.WithCancel(context.Background())
		d := New(Config{App: app, SocketPath: shortSocketPath(t), Out: &syncBuffer{}})
		done := make(chan error, 1)
		go func() { done <- d.Run(ctx) }()
		defer func() {
			cancel()
			<-done
		}()

		require.Eventually(t, func() bool { return ipc.IsRunningAt(d.config.SocketPath) }, 5*time.Second, 10*time.Millisecond)
		require.True(t, d.Send("remember me"))
		require.Eventually(t, func() bool { return len(d.Messages()) == 2 }, 5*time.Second, 10*time.Millisecond)
	}()

	store, err := history.Open(app.History.Path)
	require.NoError(t, err)
	defer store.Close()
	msgs, err := store.Recent(context.Background(), wsconn.DefaultConversation, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "remember me", msgs[0].Content)
	assert.Equal(t, "remember me", msgs[1].Content)

	// A new session restores the transcript.
	d := New(Config{App: app, SocketPath: shortSocketPath(t), Out: &syncBuffer{}})
	startDaemon(t, d)
	assert.Len(t, d.Messages(), 2)
}

func TestDaemon_InvalidServerURL(t *testing.T) {
	app := config.Default()
	app.Server.URL = "http://localhost:8000"
	app.Health.OnStart = false
	app.History.Enabled = false

	d := New(Config{App: app, SocketPath: shortSocketPath(t), Out: &syncBuffer{}})
	err := d.Run(context.Background())
	assert.ErrorIs(t, err, wsconn.ErrInvalidURL)
}

func TestDaemon_UnknownCommand(t *testing.T) {
	d := New(Config{Out: &syncBuffer{}})
	resp := d.Handler()(ipc.Request{Cmd: "navigate"})
	assert.False(t, resp.OK)
	assert.Equal(t, "unknown command: navigate", resp.Error)
}

func TestDaemon_ConfigChangeRestartsSession(t *testing.T) {
	srv := newChatServer(t)
	app := testApp(t, srv.wsURL())
	app.History.Enabled = false
	d := New(Config{App: app, SocketPath: shortSocketPath(t), Out: &syncBuffer{}})
	startDaemon(t, d)

	next := *app
	next.Server.Conversation = "project-x"
	d.applyConfig(&next)

	snap := d.Snapshot()
	assert.Equal(t, "project-x", snap.Conversation)
	assert.Equal(t, chat.StatusConnected, snap.Status)
	assert.Equal(t, []string{"/chat/ws/default", "/chat/ws/project-x"}, srv.seen())
}

func TestDaemon_SettingsChangeKeepsSession(t *testing.T) {
	srv := newChatServer(t)
	app := testApp(t, srv.wsURL())
	app.History.Enabled = false
	d := New(Config{App: app, SocketPath: shortSocketPath(t), Out: &syncBuffer{}})
	startDaemon(t, d)
	before := d.controller()

	next := *app
	next.Log.Level = "debug"
	d.applyConfig(&next)

	assert.Same(t, before, d.controller())
	assert.Len(t, srv.seen(), 1)
}

func TestDaemon_ReloadKeepsConfigOnError(t *testing.T) {
	srv := newChatServer(t)
	app := testApp(t, srv.wsURL())
	app.History.Enabled = false
	out := &syncBuffer{}
	d := New(Config{
		App:        app,
		SocketPath: shortSocketPath(t),
		Out:        out,
		Reload: func() (*config.Config, error) {
			bad := *app
			bad.Server.WireFormat = "xml"
			return &bad, nil
		},
	})
	startDaemon(t, d)
	before := d.controller()

	d.Reload()

	assert.Contains(t, out.String(), "Configuration error")
	assert.NotSame(t, before, d.controller())
	assert.Equal(t, chat.StatusConnected, d.Snapshot().Status)
	assert.Equal(t, config.WireText, d.currentApp().Server.WireFormat)
	assert.Len(t, srv.seen(), 2)
}

func TestDaemon_ReconnectDuringReload(t *testing.T) {
	srv := newChatServer(t)
	app := testApp(t, srv.wsURL())
	app.History.Enabled = false
	d := New(Config{
		App:        app,
		SocketPath: shortSocketPath(t),
		Out:        &syncBuffer{},
		Reload: func() (*config.Config, error) {
			next := *app
			return &next, nil
		},
	})
	startDaemon(t, d)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.Reload()
		}()
		go func() {
			defer wg.Done()
			_ = d.Reconnect()
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return d.Snapshot().Status == chat.StatusConnected },
		5*time.Second, 10*time.Millisecond)
	// Only the current session holds a connection.
	assert.Eventually(t, func() bool { return srv.open() == 1 }, 5*time.Second, 10*time.Millisecond,
		"open connections: %d", srv.open())
}

func TestDaemon_Render(t *testing.T) {
	out := &syncBuffer{}
	d := New(Config{Out: out})
	ts := time.Date(2025, 1, 1, 10, 0, 0, 0, time.Local)

	d.render(chat.Update{Kind: chat.UpdateMessage, Message: chat.Message{Role: chat.RoleUser, Content: "mine", Timestamp: ts}})
	d.render(chat.Update{Kind: chat.UpdateMessage, Message: chat.Message{Role: chat.RoleAssistant, Content: "part", Streaming: true, Timestamp: ts}})
	d.render(chat.Update{Kind: chat.UpdateMessage, Message: chat.Message{Role: chat.RoleAssistant, Content: "done", Timestamp: ts}})
	d.render(chat.Update{Kind: chat.UpdateStatus, Status: chat.StatusConnecting})
	d.render(chat.Update{Kind: chat.UpdateStatus, Status: chat.StatusDisconnected})
	d.render(chat.Update{Kind: chat.UpdateTyping, Typing: true})

	assert.Equal(t, "[10:00:00] assistant: done\n* disconnected\n", out.String())
}

func TestDaemon_Dialer(t *testing.T) {
	d := New(Config{})
	app := config.Default()
	assert.IsType(t, wsconn.CoderDialer{}, d.dialer(app))

	app.Connection.Transport = config.TransportGorilla
	assert.IsType(t, wsconn.GorillaDialer{}, d.dialer(app))

	custom := wsconn.DialerFunc(func(context.Context, string) (wsconn.Conn, error) { return nil, nil })
	d = New(Config{Dialer: custom})
	assert.NotNil(t, d.dialer(app))
}
