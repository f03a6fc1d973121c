// Package chat keeps the conversation state for one chat channel on top of
// a wsconn.Manager: connection status, the message list and the typing
// indicator.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ashwinachu030493/AIde/internal/wsconn"
)

// Status is the connection status shown to the user.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Wire formats for outbound frames.
const (
	WireJSON = "json"
	WireText = "text"
)

// DefaultHistoryLimit is the number of messages kept in memory.
const DefaultHistoryLimit = 200

const recordTimeout = 5 * time.Second

// Recorder persists complete messages.
type Recorder interface {
	Append(ctx context.Context, conversationID string, msg Message) error
}

// Config identifies the conversation and the outbound frame format.
type Config struct {
	ServerURL    string
	Conversation string
	WireFormat   string
	ProjectID    string
	HistoryLimit int
}

// UpdateKind says which part of the controller state changed.
type UpdateKind int

const (
	UpdateStatus UpdateKind = iota
	UpdateMessage
	UpdateTyping
	UpdateCleared
)

// Update describes one state change. Message is set for UpdateMessage,
// Status for UpdateStatus and Typing for UpdateTyping.
type Update struct {
	Kind    UpdateKind
	Status  Status
	Message Message
	Typing  bool
}

// Snapshot is a point-in-time view of the controller and its connection.
type Snapshot struct {
	Status       Status       `json:"-"`
	State        wsconn.State `json:"-"`
	StatusName   string       `json:"status"`
	StateName    string       `json:"state"`
	URL          string       `json:"url"`
	Attempts     int          `json:"attempts"`
	Messages     int          `json:"messages"`
	Typing       bool         `json:"typing"`
	Conversation string       `json:"conversation"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRecorder persists every complete user and assistant message.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// Controller drives a single conversation.
type Controller struct {
	cfg      Config
	mgr      *wsconn.Manager
	log      *zap.Logger
	recorder Recorder

	mu        sync.Mutex
	status    Status
	typing    bool
	messages  *ring[Message]
	observers []func(Update)
}

// NewController binds a controller to mgr. The controller owns mgr's
// callbacks from here on.
func NewController(mgr *wsconn.Manager, cfg Config, opts ...Option) *Controller {
	if cfg.Conversation == "" {
		cfg.Conversation = wsconn.DefaultConversation
	}
	if cfg.WireFormat == "" {
		cfg.WireFormat = WireJSON
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	c := &Controller{
		cfg:      cfg,
		mgr:      mgr,
		log:      zap.NewNop(),
		messages: newRing[Message](cfg.HistoryLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("chat")

	mgr.OnOpen(c.handleOpen)
	mgr.OnClose(c.handleClose)
	mgr.OnError(c.handleError)
	mgr.OnMessage(c.handleMessage)
	return c
}

// Conversation returns the conversation id.
func (c *Controller) Conversation() string {
	return c.cfg.Conversation
}

// OnUpdate registers an observer for state changes. Observers run on the
// goroutine that caused the change and must not block.
func (c *Controller) OnUpdate(fn func(Update)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Connect opens the conversation channel. It does nothing when already
// connected. On failure the status is Disconnected and the manager keeps
// retrying in the background.
func (c *Controller) Connect(ctx context.Context) error {
	if c.mgr.IsConnected() {
		return nil
	}
	return c.connect(ctx)
}

// Reconnect opens a fresh channel even when one is open.
func (c *Controller) Reconnect(ctx context.Context) error {
	return c.connect(ctx)
}

func (c *Controller) connect(ctx context.Context) error {
	endpoint, err := wsconn.EndpointURL(c.cfg.ServerURL, c.cfg.Conversation)
	if err != nil {
		c.setStatus(StatusDisconnected)
		return err
	}

	c.setStatus(StatusConnecting)
	if err := c.mgr.Connect(ctx, endpoint); err != nil {
		c.log.Warn("failed to connect", zap.String("url", endpoint), zap.Error(err))
		c.setStatus(StatusDisconnected)
		return err
	}

	// onOpen may still be queued behind this return.
	c.mu.Lock()
	changed := c.mgr.IsConnected() && c.status != StatusConnected
	if changed {
		c.status = StatusConnected
	}
	c.mu.Unlock()
	if changed {
		c.emit(Update{Kind: UpdateStatus, Status: StatusConnected})
	}
	return nil
}

// Disconnect closes the channel and stops reconnecting.
func (c *Controller) Disconnect() {
	c.mgr.Close()
	c.setTyping(false)
	c.setStatus(StatusDisconnected)
}

// Close disconnects and waits for the connection goroutines to exit.
func (c *Controller) Close() {
	c.Disconnect()
	c.mgr.Wait()
}

// SendMessage sends content as a user message. It returns false without
// sending when content is blank or the channel is not connected.
func (c *Controller) SendMessage(content string) bool {
	text := strings.TrimSpace(content)
	if text == "" {
		return false
	}

	c.mu.Lock()
	if c.status != StatusConnected {
		c.mu.Unlock()
		return false
	}
	msg := NewMessage(RoleUser, text)
	c.messages.Push(msg)
	c.typing = true
	c.mu.Unlock()

	c.emit(Update{Kind: UpdateMessage, Message: msg})
	c.emit(Update{Kind: UpdateTyping, Typing: true})
	c.record(msg)

	if c.cfg.WireFormat == WireText {
		c.mgr.Send(text)
	} else {
		c.mgr.Send(encodeMessage(text, c.cfg.ProjectID))
	}
	return true
}

// NotifySettingsChanged asks the server to reload its settings. Plain text
// channels have no control frames, so it reports false there.
func (c *Controller) NotifySettingsChanged() bool {
	if c.cfg.WireFormat != WireJSON || c.Status() != StatusConnected {
		return false
	}
	c.mgr.Send(encodeSettingsUpdate())
	return true
}

// Restore seeds the message list, typically from stored history. It does
// not record or emit.
func (c *Controller) Restore(msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.messages.Push(m)
	}
}

// ClearMessages empties the in-memory message list.
func (c *Controller) ClearMessages() {
	c.mu.Lock()
	c.messages.Clear()
	c.mu.Unlock()
	c.emit(Update{Kind: UpdateCleared})
}

// Messages returns the messages, oldest first.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages.All()
}

// Status returns the connection status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Typing reports whether a reply is expected.
func (c *Controller) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// Snapshot returns the current status together with connection details.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		Status:       c.status,
		Messages:     c.messages.Len(),
		Typing:       c.typing,
		Conversation: c.cfg.Conversation,
	}
	c.mu.Unlock()

	s.State = c.mgr.State()
	s.URL = c.mgr.URL()
	s.Attempts = c.mgr.Attempts()
	s.StatusName = s.Status.String()
	s.StateName = s.State.String()
	return s
}

func (c *Controller) handleOpen() {
	c.log.Info("connected", zap.String("conversation", c.cfg.Conversation))
	c.setStatus(StatusConnected)
}

func (c *Controller) handleClose(ev wsconn.CloseEvent) {
	c.log.Info("disconnected, auto-reconnect in progress",
		zap.Int("code", int(ev.Code)), zap.String("reason", ev.Reason))
	c.setTyping(false)
	c.setStatus(StatusDisconnected)
}

func (c *Controller) handleError(err error) {
	c.log.Warn("connection error", zap.Error(err))
	c.setStatus(StatusError)
}

func (c *Controller) handleMessage(payload string) {
	c.setTyping(false)

	f, ok := decodeFrame(payload)
	if !ok {
		c.addMessage(NewMessage(RoleAssistant, stripEcho(payload)), true)
		return
	}

	switch f.Type {
	case frameTyping:
		c.setTyping(f.IsTyping)
	case frameChunk:
		c.appendChunk(f.Content)
	case frameComplete:
		c.completeMessage(f.Content)
	case frameError:
		c.finishStreaming()
		c.addMessage(NewMessage(RoleSystem, f.Content), false)
	case frameSettingsUpdated:
		c.addMessage(NewMessage(RoleSystem, f.Message), false)
	}
}

func (c *Controller) addMessage(msg Message, record bool) {
	c.mu.Lock()
	c.messages.Push(msg)
	c.mu.Unlock()

	c.emit(Update{Kind: UpdateMessage, Message: msg})
	if record {
		c.record(msg)
	}
}

// appendChunk extends the streaming assistant message or starts one.
func (c *Controller) appendChunk(content string) {
	c.mu.Lock()
	last := c.messages.Last()
	if last == nil || !last.Streaming || last.Role != RoleAssistant {
		c.messages.Push(NewMessage(RoleAssistant, ""))
		last = c.messages.Last()
		last.Streaming = true
	}
	last.Content += content
	msg := *last
	c.mu.Unlock()

	c.emit(Update{Kind: UpdateMessage, Message: msg})
}

// completeMessage replaces the streaming message with the full reply.
func (c *Controller) completeMessage(content string) {
	c.mu.Lock()
	last := c.messages.Last()
	if last == nil || !last.Streaming || last.Role != RoleAssistant {
		c.messages.Push(NewMessage(RoleAssistant, ""))
		last = c.messages.Last()
	}
	last.Content = content
	last.Streaming = false
	msg := *last
	c.mu.Unlock()

	c.emit(Update{Kind: UpdateMessage, Message: msg})
	c.record(msg)
}

// finishStreaming ends a partial reply as-is.
func (c *Controller) finishStreaming() {
	c.mu.Lock()
	last := c.messages.Last()
	if last == nil || !last.Streaming {
		c.mu.Unlock()
		return
	}
	last.Streaming = false
	msg := *last
	c.mu.Unlock()

	c.emit(Update{Kind: UpdateMessage, Message: msg})
	c.record(msg)
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	c.mu.Unlock()
	c.emit(Update{Kind: UpdateStatus, Status: s})
}

func (c *Controller) setTyping(on bool) {
	c.mu.Lock()
	if c.typing == on {
		c.mu.Unlock()
		return
	}
	c.typing = on
	c.mu.Unlock()
	c.emit(Update{Kind: UpdateTyping, Typing: on})
}

func (c *Controller) emit(u Update) {
	c.mu.Lock()
	observers := c.observers
	c.mu.Unlock()

	for _, fn := range observers {
		fn(u)
	}
}

func (c *Controller) record(msg Message) {
	if c.recorder == nil || msg.Content == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := c.recorder.Append(ctx, c.cfg.Conversation, msg); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("failed to record message", zap.String("id", msg.ID), zap.Error(err))
	}
}
