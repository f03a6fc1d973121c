// Package format renders command results as human-readable text.
package format

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/Ashwinachu030493/AIde/internal/chat"
	"github.com/Ashwinachu030493/AIde/internal/health"
	"github.com/Ashwinachu030493/AIde/internal/ipc"
)

// Color helpers respect color.NoColor.
func colorFprint(w io.Writer, c color.Attribute, s string) {
	color.New(c).Fprint(w, s)
}

func colorFprintf(w io.Writer, c color.Attribute, format string, args ...interface{}) {
	color.New(c).Fprintf(w, format, args...)
}

// OutputOptions controls text formatting behavior.
type OutputOptions struct {
	UseColor bool // Enable ANSI color codes
}

// NewOutputOptions returns output options based on flags and environment.
// Priority: jsonOutput > noColorFlag > NO_COLOR env > TTY detection.
func NewOutputOptions(jsonOutput bool, noColorFlag bool) OutputOptions {
	if jsonOutput || noColorFlag {
		return OutputOptions{UseColor: false}
	}
	if os.Getenv("NO_COLOR") != "" {
		return OutputOptions{UseColor: false}
	}
	return OutputOptions{
		UseColor: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// ActionSuccess outputs "OK" for successful action commands.
func ActionSuccess(w io.Writer) error {
	_, err := fmt.Fprintln(w, "OK")
	return err
}

// ActionError outputs "Error: <message>" for failed action commands.
func ActionError(w io.Writer, msg string, opts OutputOptions) error {
	if opts.UseColor {
		colorFprint(w, color.FgRed, "Error:")
		fmt.Fprintf(w, " %s\n", msg)
	} else {
		fmt.Fprintf(w, "Error: %s\n", msg)
	}
	return nil
}

func statusColor(status string) color.Attribute {
	switch status {
	case "connected", "open":
		return color.FgGreen
	case "connecting", "retry_wait", "closing":
		return color.FgYellow
	case "error", "terminated":
		return color.FgRed
	default:
		return color.Faint
	}
}

// Status outputs chat session status in text format.
func Status(w io.Writer, data ipc.StatusData, opts OutputOptions) error {
	if !data.Running {
		if opts.UseColor {
			colorFprint(w, color.FgYellow, "Not running (start with: aide chat)\n")
		} else {
			fmt.Fprintln(w, "Not running (start with: aide chat)")
		}
		return nil
	}

	if opts.UseColor {
		colorFprintf(w, statusColor(data.Status), "%s\n", data.Status)
	} else {
		fmt.Fprintln(w, data.Status)
	}
	if data.PID > 0 {
		fmt.Fprintf(w, "pid: %d\n", data.PID)
	}
	fmt.Fprintf(w, "conversation: %s\n", data.Conversation)
	if data.URL != "" {
		fmt.Fprintf(w, "url: %s\n", data.URL)
	}
	fmt.Fprintf(w, "state: %s\n", data.State)
	if data.Attempts > 0 {
		fmt.Fprintf(w, "attempts: %d\n", data.Attempts)
	}
	fmt.Fprintf(w, "messages: %d\n", data.Messages)
	if data.Typing {
		fmt.Fprintln(w, "typing: yes")
	}
	return nil
}

// Health outputs a health check result in text format.
// Format: <url> healthy|unavailable (status) <latency>
func Health(w io.Writer, url string, st health.Status, checkErr error, opts OutputOptions) error {
	fmt.Fprintf(w, "%s ", url)
	switch {
	case checkErr == nil:
		label := st.State
		if label == "" {
			label = "ok"
		}
		if opts.UseColor {
			colorFprint(w, color.FgGreen, label)
		} else {
			fmt.Fprint(w, label)
		}
	default:
		if opts.UseColor {
			colorFprint(w, color.FgRed, "unavailable")
		} else {
			fmt.Fprint(w, "unavailable")
		}
	}
	if st.StatusCode > 0 {
		fmt.Fprintf(w, " (%d)", st.StatusCode)
	}
	if st.Latency > 0 {
		fmt.Fprintf(w, " %s", st.Latency.Round(time.Millisecond))
	}
	if st.Version != "" {
		fmt.Fprintf(w, " v%s", st.Version)
	}
	fmt.Fprintln(w)
	return nil
}

// Detailed outputs the detailed server health report.
func Detailed(w io.Writer, d health.Detailed) error {
	fmt.Fprintf(w, "api: %s\n", d.API)
	fmt.Fprintf(w, "database: %s\n", d.Database)
	fmt.Fprintf(w, "user settings: %t\n", d.HasUserSettings)
	fmt.Fprintf(w, "llm providers: %d\n", d.LLMProvidersConfigured)
	return nil
}

func roleColor(r chat.Role) color.Attribute {
	switch r {
	case chat.RoleUser:
		return color.FgCyan
	case chat.RoleAssistant:
		return color.FgGreen
	default:
		return color.FgYellow
	}
}

// Message outputs one chat message.
// Format: [HH:MM:SS] role: content
// Continuation lines are indented by two spaces.
func Message(w io.Writer, m chat.Message, opts OutputOptions) error {
	timestamp := m.Timestamp.Local().Format("15:04:05")
	content := strings.ReplaceAll(strings.TrimRight(m.Content, "\n"), "\n", "\n  ")

	if opts.UseColor {
		fmt.Fprint(w, "[")
		colorFprint(w, color.Faint, timestamp)
		fmt.Fprint(w, "] ")
		colorFprintf(w, roleColor(m.Role), "%s:", m.Role)
		fmt.Fprintf(w, " %s\n", content)
		return nil
	}
	_, err := fmt.Fprintf(w, "[%s] %s: %s\n", timestamp, m.Role, content)
	return err
}

// Messages outputs a transcript, oldest first.
func Messages(w io.Writer, msgs []chat.Message, opts OutputOptions) error {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages")
		return nil
	}
	for _, m := range msgs {
		if err := Message(w, m, opts); err != nil {
			return err
		}
	}
	return nil
}
