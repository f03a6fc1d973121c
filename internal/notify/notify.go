// Package notify delivers user-facing notifications from background
// components to whatever surface the host provides.
package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// String returns a human-readable name for the level.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is a message for the user with at most one action.
type Notification struct {
	Level   Level
	Message string
	// Action is the label of the single choice offered, empty for none.
	Action string
	// OnAction runs when the user picks Action.
	OnAction func()
}

// Notifier shows notifications. Notify must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(n Notification)

// Notify calls f(n).
func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Terminal prints notifications to a writer and keeps the most recent
// actionable one until the user accepts it.
type Terminal struct {
	mu       sync.Mutex
	out      io.Writer
	useColor bool
	pending  *Notification
}

// NewTerminal creates a terminal notifier writing to out.
func NewTerminal(out io.Writer, useColor bool) *Terminal {
	return &Terminal{out: out, useColor: useColor}
}

// Notify prints n and, if it carries an action, makes it pending.
func (t *Terminal) Notify(n Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n.Action != "" {
		pending := n
		t.pending = &pending
	}

	prefix := levelPrefix(n.Level)
	line := n.Message
	if n.Action != "" {
		line = fmt.Sprintf("%s [type %q]", line, strings.ToLower(n.Action))
	}

	if t.useColor {
		c := levelColor(n.Level)
		c.EnableColor()
		c.Fprint(t.out, prefix)
		fmt.Fprintf(t.out, " %s\n", line)
		return
	}
	fmt.Fprintf(t.out, "%s %s\n", prefix, line)
}

// Pending returns the notification waiting for an answer, if any.
func (t *Terminal) Pending() (Notification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return Notification{}, false
	}
	return *t.pending, true
}

// Accept runs the pending action when action matches its label,
// ignoring case and surrounding space. It returns false if nothing ran.
func (t *Terminal) Accept(action string) bool {
	t.mu.Lock()
	p := t.pending
	if p == nil || !strings.EqualFold(strings.TrimSpace(action), p.Action) {
		t.mu.Unlock()
		return false
	}
	t.pending = nil
	t.mu.Unlock()

	if p.OnAction != nil {
		p.OnAction()
	}
	return true
}

// Dismiss drops the pending notification.
func (t *Terminal) Dismiss() {
	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
}

func levelPrefix(l Level) string {
	switch l {
	case LevelWarning:
		return "Warning:"
	case LevelError:
		return "Error:"
	default:
		return "Notice:"
	}
}

func levelColor(l Level) *color.Color {
	switch l {
	case LevelWarning:
		return color.New(color.FgYellow, color.Bold)
	case LevelError:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgCyan)
	}
}
