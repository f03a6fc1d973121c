// Package daemon hosts an interactive chat session: the conversation
// controller and its connection, the local transcript, the control socket,
// the metrics endpoint and the config file watcher.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Ashwinachu030493/AIde/internal/chat"
	"github.com/Ashwinachu030493/AIde/internal/cli/format"
	"github.com/Ashwinachu030493/AIde/internal/config"
	"github.com/Ashwinachu030493/AIde/internal/health"
	"github.com/Ashwinachu030493/AIde/internal/history"
	"github.com/Ashwinachu030493/AIde/internal/ipc"
	"github.com/Ashwinachu030493/AIde/internal/metrics"
	"github.com/Ashwinachu030493/AIde/internal/notify"
	"github.com/Ashwinachu030493/AIde/internal/wsconn"
)

// CommandExecutor runs a CLI command line from the REPL. It reports whether
// the command was recognized and returns only errors it has not printed.
type CommandExecutor func(args []string) (recognized bool, err error)

// Config holds daemon configuration.
type Config struct {
	// App is the initial configuration.
	App *config.Config
	// Reload produces a fresh configuration for a host reload. Nil keeps App.
	Reload func() (*config.Config, error)
	// ConfigPath is watched for changes when non-empty.
	ConfigPath string
	SocketPath string
	Logger     *zap.Logger
	Out        io.Writer
	UseColor   bool
	// Interactive runs the REPL on stdin.
	Interactive bool
	// CommandExecutor is called by the REPL for commands that are not
	// REPL commands. If nil, they are reported as unknown.
	CommandExecutor CommandExecutor
	// Dialer overrides the transport selected by App.Connection.Transport.
	Dialer wsconn.Dialer
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() Config {
	return Config{
		App:        config.Default(),
		SocketPath: ipc.DefaultSocketPath(),
		Out:        os.Stdout,
	}
}

// Daemon is a running chat session.
type Daemon struct {
	config   Config
	log      *zap.Logger
	out      io.Writer
	opts     format.OutputOptions
	notifier *notify.Terminal
	metrics  *metrics.Connection
	store    *history.Store
	server   *ipc.Server

	mu   sync.Mutex
	app  *config.Config
	ctrl *chat.Controller

	// restartMu serializes host reloads with operations that connect or
	// close the current controller.
	restartMu sync.Mutex
	outMu     sync.Mutex

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates a new daemon with the given configuration.
func New(cfg Config) *Daemon {
	if cfg.App == nil {
		cfg.App = config.Default()
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = ipc.DefaultSocketPath()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	d := &Daemon{
		config:   cfg,
		log:      log,
		out:      cfg.Out,
		opts:     format.OutputOptions{UseColor: cfg.UseColor},
		metrics:  metrics.New(),
		app:      cfg.App,
		shutdown: make(chan struct{}),
	}
	d.notifier = notify.NewTerminal(&lockedWriter{mu: &d.outMu, w: cfg.Out}, cfg.UseColor)
	return d
}

// Handler returns the IPC request handler function.
// Used by the CLI to create a direct executor for REPL command execution.
func (d *Daemon) Handler() ipc.Handler {
	return d.handleRequest
}

// Metrics returns the connection metrics of this session.
func (d *Daemon) Metrics() *metrics.Connection {
	return d.metrics
}

// Notifier returns the terminal notification surface.
func (d *Daemon) Notifier() *notify.Terminal {
	return d.notifier
}

// Run starts the session and blocks until shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	app := d.currentApp()

	if app.History.Enabled {
		path, err := app.HistoryPath()
		if err != nil {
			return err
		}
		store, err := history.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		d.store = store
		defer d.store.Close()
	}

	if app.Health.OnStart {
		d.checkHealth(ctx, app)
	}

	ctrl := d.newController(app)
	d.restoreHistory(ctrl, app)
	d.mu.Lock()
	d.ctrl = ctrl
	d.mu.Unlock()
	defer func() { d.controller().Close() }()

	if err := d.connect(ctrl, app); errors.Is(err, wsconn.ErrInvalidURL) {
		return err
	}

	server, err := ipc.NewServer(d.config.SocketPath, d.handleRequest, d.log)
	if err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}
	d.server = server
	defer d.server.Close()

	if app.Metrics.Addr != "" {
		srv, err := d.serveMetrics(app.Metrics.Addr)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if d.config.ConfigPath != "" {
		w, err := config.NewWatcher(config.WatcherConfig{
			Path:     d.config.ConfigPath,
			Reload:   d.reloadConfig,
			OnChange: d.applyConfig,
			Logger:   d.log,
		})
		if err != nil {
			d.log.Warn("config watcher disabled", zap.Error(err))
		} else if err := w.Start(); err != nil {
			d.log.Warn("config watcher disabled", zap.Error(err))
			_ = w.Stop()
		} else {
			defer w.Stop()
		}
	}

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.server.Serve(ctx)
	}()

	// replDone stays open without a REPL so the select below waits for
	// the other shutdown sources.
	replDone := make(chan struct{})
	if d.config.Interactive {
		repl := NewREPL(d, d.config.CommandExecutor, d.Shutdown)
		repl.SetNotifier(d.notifier)
		repl.SetOutput(&lockedWriter{mu: &d.outMu, w: d.out}, d.opts)
		go func() {
			defer close(replDone)
			if err := repl.Run(); err != nil {
				d.log.Warn("repl stopped", zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sigCh:
		return nil
	case <-d.shutdown:
		return nil
	case err := <-errCh:
		return err
	case <-replDone:
		return nil
	}
}

// Shutdown stops Run. It is safe to call more than once.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		close(d.shutdown)
	})
}

func (d *Daemon) currentApp() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.app
}

func (d *Daemon) controller() *chat.Controller {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctrl
}

func (d *Daemon) dialer(app *config.Config) wsconn.Dialer {
	if d.config.Dialer != nil {
		return d.config.Dialer
	}
	if app.Connection.Transport == config.TransportGorilla {
		return wsconn.GorillaDialer{}
	}
	return wsconn.CoderDialer{}
}

// newController builds a manager and controller for app.
func (d *Daemon) newController(app *config.Config) *chat.Controller {
	mgr := wsconn.NewManager(app.WSConfig(),
		wsconn.WithDialer(d.dialer(app)),
		wsconn.WithLogger(d.log),
		wsconn.WithNotifier(d.notifier),
		wsconn.WithMetrics(d.metrics),
		wsconn.WithReload(d.Reload),
	)

	opts := []chat.Option{chat.WithLogger(d.log)}
	if d.store != nil {
		opts = append(opts, chat.WithRecorder(d.store))
	}
	ctrl := chat.NewController(mgr, chat.Config{
		ServerURL:    app.Server.URL,
		Conversation: app.Server.Conversation,
		WireFormat:   app.Server.WireFormat,
		ProjectID:    app.Server.ProjectID,
		HistoryLimit: app.History.Limit,
	}, opts...)
	ctrl.OnUpdate(d.render)
	return ctrl
}

func (d *Daemon) connect(ctrl *chat.Controller, app *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), app.Connection.ConnectTimeout+time.Second)
	defer cancel()
	err := ctrl.Connect(ctx)
	if err != nil {
		d.log.Warn("initial connect failed", zap.String("conversation", ctrl.Conversation()), zap.Error(err))
	}
	return err
}

func (d *Daemon) restoreHistory(ctrl *chat.Controller, app *config.Config) {
	if d.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := d.store.Recent(ctx, ctrl.Conversation(), app.History.Limit)
	if err != nil {
		d.log.Warn("failed to load history", zap.Error(err))
		return
	}
	ctrl.Restore(msgs)
}

func (d *Daemon) checkHealth(ctx context.Context, app *config.Config) {
	base, err := app.HealthURL()
	if err != nil {
		d.log.Warn("health check skipped", zap.Error(err))
		return
	}
	client := health.NewClient(health.Config{
		BaseURL:   base,
		Timeout:   app.Health.Timeout,
		Retries:   app.Health.Retries,
		RetryWait: health.DefaultConfig().RetryWait,
		Interval:  app.Health.Interval,
	},
		health.WithLogger(d.log),
		health.WithNotifier(d.notifier),
		health.WithMetrics(d.metrics),
	)
	_ = client.CheckAndNotify(ctx)
}

func (d *Daemon) serveMetrics(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	d.log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return srv, nil
}

func (d *Daemon) reloadConfig(string) (*config.Config, error) {
	if d.config.Reload == nil {
		return d.currentApp(), nil
	}
	return d.config.Reload()
}

// applyConfig takes a changed configuration. Connection changes rebuild the
// session. Anything else only tells the server that settings changed.
func (d *Daemon) applyConfig(next *config.Config) {
	d.mu.Lock()
	prev := d.app
	d.app = next
	d.mu.Unlock()

	if prev.Server != next.Server || prev.Connection != next.Connection || prev.History.Limit != next.History.Limit {
		d.log.Info("connection settings changed")
		d.restart()
		return
	}
	if ctrl := d.controller(); ctrl != nil {
		ctrl.NotifySettingsChanged()
	}
}

// Reload reloads the configuration and starts a fresh session.
func (d *Daemon) Reload() {
	next, err := d.reloadConfig("")
	if err == nil {
		err = next.Validate()
	}
	if err != nil {
		d.log.Warn("reload kept the previous configuration", zap.Error(err))
		d.notifier.Notify(notify.Notification{
			Level:   notify.LevelError,
			Message: fmt.Sprintf("Configuration error: %v", err),
		})
	} else {
		d.mu.Lock()
		d.app = next
		d.mu.Unlock()
	}
	d.restart()
}

// restart replaces the controller and its manager with fresh ones built from
// the current configuration, then connects.
func (d *Daemon) restart() {
	d.restartMu.Lock()
	defer d.restartMu.Unlock()

	d.mu.Lock()
	app := d.app
	old := d.ctrl
	d.mu.Unlock()
	if old == nil {
		return
	}

	var kept []chat.Message
	if old.Conversation() == app.Server.Conversation {
		kept = old.Messages()
	}
	old.Close()

	ctrl := d.newController(app)
	if kept != nil {
		ctrl.Restore(kept)
	} else {
		d.restoreHistory(ctrl, app)
	}
	d.mu.Lock()
	d.ctrl = ctrl
	d.mu.Unlock()

	d.log.Info("session restarted", zap.String("conversation", ctrl.Conversation()))
	_ = d.connect(ctrl, app)
}

// Session operations used by the REPL.

// Send sends a user message on the current conversation.
func (d *Daemon) Send(content string) bool {
	return d.controller().SendMessage(content)
}

// Snapshot returns the current session state.
func (d *Daemon) Snapshot() chat.Snapshot {
	return d.controller().Snapshot()
}

// Messages returns the in-memory transcript.
func (d *Daemon) Messages() []chat.Message {
	return d.controller().Messages()
}

// Clear empties the in-memory transcript. The stored history is kept.
func (d *Daemon) Clear() {
	d.controller().ClearMessages()
}

// Reconnect opens a fresh connection on the current conversation.
func (d *Daemon) Reconnect() error {
	d.restartMu.Lock()
	defer d.restartMu.Unlock()

	app := d.currentApp()
	ctx, cancel := context.WithTimeout(context.Background(), app.Connection.ConnectTimeout+time.Second)
	defer cancel()
	return d.controller().Reconnect(ctx)
}

// Disconnect closes the connection and stops reconnecting.
func (d *Daemon) Disconnect() {
	d.restartMu.Lock()
	defer d.restartMu.Unlock()
	d.controller().Disconnect()
}

// handleRequest processes an IPC request and returns a response.
func (d *Daemon) handleRequest(req ipc.Request) ipc.Response {
	switch req.Cmd {
	case ipc.CmdStatus:
		return ipc.SuccessResponse(statusData(d.Snapshot()))
	case ipc.CmdReconnect:
		if err := d.Reconnect(); err != nil {
			return ipc.ErrorResponse(err.Error())
		}
		return ipc.SuccessResponse(statusData(d.Snapshot()))
	case ipc.CmdDisconnect:
		d.Disconnect()
		return ipc.SuccessResponse(statusData(d.Snapshot()))
	default:
		return ipc.ErrorResponse(fmt.Sprintf("unknown command: %s", req.Cmd))
	}
}

func statusData(s chat.Snapshot) ipc.StatusData {
	return ipc.StatusData{
		Running:      true,
		PID:          os.Getpid(),
		Conversation: s.Conversation,
		Status:       s.StatusName,
		State:        s.StateName,
		URL:          s.URL,
		Attempts:     s.Attempts,
		Messages:     s.Messages,
		Typing:       s.Typing,
	}
}

// render prints finished server messages and status changes.
func (d *Daemon) render(u chat.Update) {
	d.outMu.Lock()
	defer d.outMu.Unlock()

	switch u.Kind {
	case chat.UpdateMessage:
		if u.Message.Streaming || u.Message.Role == chat.RoleUser {
			return
		}
		_ = format.Message(d.out, u.Message, d.opts)
	case chat.UpdateStatus:
		if u.Status == chat.StatusConnecting {
			return
		}
		fmt.Fprintf(d.out, "* %s\n", u.Status)
	}
}

// lockedWriter serializes writes from the notifier, the REPL and render.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
