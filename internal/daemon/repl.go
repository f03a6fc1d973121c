package daemon

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/Ashwinachu030493/AIde/internal/chat"
	"github.com/Ashwinachu030493/AIde/internal/cli/format"
	"github.com/Ashwinachu030493/AIde/internal/notify"
)

// Session is the chat session driven by the REPL.
type Session interface {
	Send(content string) bool
	Snapshot() chat.Snapshot
	Messages() []chat.Message
	Clear()
	Reconnect() error
	Disconnect()
	Reload()
}

// ActionAcceptor answers pending notifications.
type ActionAcceptor interface {
	Pending() (notify.Notification, bool)
	Accept(action string) bool
}

type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// REPL reads chat input from the terminal. Lines starting with "/" are
// commands; anything else is sent as a message.
type REPL struct {
	session  Session
	cmdExec  CommandExecutor
	actions  ActionAcceptor
	reader   lineReader
	out      io.Writer
	opts     format.OutputOptions
	shutdown func()
}

// NewREPL creates a new REPL for session. The cmdExec function runs CLI
// commands that are not REPL commands and may be nil.
func NewREPL(session Session, cmdExec CommandExecutor, shutdown func()) *REPL {
	return &REPL{
		session:  session,
		cmdExec:  cmdExec,
		out:      os.Stdout,
		shutdown: shutdown,
	}
}

// SetNotifier lets typed action names answer pending notifications.
func (r *REPL) SetNotifier(a ActionAcceptor) {
	r.actions = a
}

// SetOutput sets where the REPL prints.
func (r *REPL) SetOutput(w io.Writer, opts format.OutputOptions) {
	r.out = w
	r.opts = opts
}

// IsStdinTTY returns true if stdin is a terminal.
func IsStdinTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Run starts the REPL loop. Blocks until exit command or EOF.
func (r *REPL) Run() error {
	if r.reader == nil {
		l := liner.NewLiner()
		l.SetCtrlCAborts(true)
		r.reader = l
	}
	defer r.reader.Close()

	for {
		line, err := r.reader.Prompt(r.prompt())
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.reader.AppendHistory(line)

		if r.handleLine(line) {
			return nil
		}
	}
}

// prompt shows the connection status and any action waiting for an answer.
func (r *REPL) prompt() string {
	snap := r.session.Snapshot()
	status := snap.Status.String()
	if snap.Typing {
		status += " ..."
	}
	if r.actions != nil {
		if n, ok := r.actions.Pending(); ok && n.Action != "" {
			return fmt.Sprintf("aide [%s] (%s?)> ", status, strings.ToLower(n.Action))
		}
	}
	return fmt.Sprintf("aide [%s]> ", status)
}

// handleLine dispatches one input line. It returns true when the REPL
// should exit.
func (r *REPL) handleLine(line string) bool {
	if strings.HasPrefix(line, "/") {
		return r.handleSlashCommand(strings.TrimPrefix(line, "/"))
	}
	if r.actions != nil && r.actions.Accept(line) {
		return false
	}
	if !r.session.Send(line) {
		snap := r.session.Snapshot()
		fmt.Fprintf(r.out, "not sent: %s (try /reconnect)\n", snap.Status)
	}
	return false
}

// replCommands lists REPL commands for abbreviation matching.
var replCommands = []string{"help", "history", "clear", "status", "reconnect", "disconnect", "reload", "exit", "quit"}

// expandAbbreviation expands a command prefix to a full command name.
// Returns the expanded command and true if exactly one match found.
// Returns empty string and false if no matches or ambiguous.
func expandAbbreviation(prefix string, commands []string) (string, bool) {
	prefix = strings.ToLower(prefix)
	var matches []string
	for _, cmd := range commands {
		if cmd == prefix {
			return cmd, true
		}
		if strings.HasPrefix(cmd, prefix) {
			matches = append(matches, cmd)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return "", false
}

func (r *REPL) handleSlashCommand(line string) bool {
	args := strings.Fields(line)
	if len(args) == 0 {
		r.printHelp()
		return false
	}
	cmd := strings.ToLower(args[0])
	if expanded, ok := expandAbbreviation(cmd, replCommands); ok {
		cmd = expanded
	}

	switch cmd {
	case "exit", "quit":
		if r.shutdown != nil {
			r.shutdown()
		}
		return true

	case "help", "?":
		r.printHelp()

	case "history":
		_ = format.Messages(r.out, r.session.Messages(), r.opts)

	case "clear":
		r.session.Clear()
		_ = format.ActionSuccess(r.out)

	case "status":
		_ = format.Status(r.out, statusData(r.session.Snapshot()), r.opts)

	case "reconnect":
		if err := r.session.Reconnect(); err != nil {
			_ = format.ActionError(r.out, err.Error(), r.opts)
			return false
		}
		_ = format.ActionSuccess(r.out)

	case "disconnect":
		r.session.Disconnect()
		_ = format.ActionSuccess(r.out)

	case "reload":
		r.session.Reload()

	default:
		r.executeCommand(args)
	}
	return false
}

// executeCommand runs an aide CLI command such as "/health".
func (r *REPL) executeCommand(args []string) {
	if r.cmdExec == nil || strings.EqualFold(args[0], "chat") {
		_ = format.ActionError(r.out, fmt.Sprintf("unknown command: /%s", args[0]), r.opts)
		return
	}
	recognized, err := r.cmdExec(args)
	if !recognized {
		_ = format.ActionError(r.out, fmt.Sprintf("unknown command: /%s", args[0]), r.opts)
		return
	}
	if err != nil {
		_ = format.ActionError(r.out, err.Error(), r.opts)
	}
}

// printHelp displays available commands.
func (r *REPL) printHelp() {
	help := `
Type a message and press enter to send it.

Commands (unique prefixes accepted: he=help, hi=history, c=clear, s=status, d=disconnect):
  /help, /?       Show this help
  /history        Show the conversation
  /clear          Clear the conversation view (stored history is kept)
  /status         Show connection status
  /reconnect      Open a fresh connection
  /disconnect     Close the connection and stop reconnecting
  /reload         Reload configuration and start a fresh session
  /exit, /quit    Leave the chat

Other aide commands run with a leading slash, e.g. /health.
When a notification offers an action, type its name (e.g. reload) to run it.
`
	fmt.Fprintln(r.out, help)
}
