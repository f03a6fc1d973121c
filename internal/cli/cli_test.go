package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Ashwinachu030493/AIde/internal/chat"
	"github.com/Ashwinachu030493/AIde/internal/config"
	"github.com/Ashwinachu030493/AIde/internal/executor"
	"github.com/Ashwinachu030493/AIde/internal/history"
	"github.com/Ashwinachu030493/AIde/internal/ipc"
)

func init() {
	// Disable colors in tests to avoid ANSI codes in output assertions
	color.NoColor = true
}

// enableJSONOutput sets JSONOutput to true for the duration of the test.
func enableJSONOutput(t *testing.T) {
	old := JSONOutput
	JSONOutput = true
	t.Cleanup(func() { JSONOutput = old })
}

// mockExecutor implements executor.Executor for testing.
type mockExecutor struct {
	executeFunc func(req ipc.Request) (ipc.Response, error)
	closed      bool
}

func (m *mockExecutor) Execute(req ipc.Request) (ipc.Response, error) {
	if m.executeFunc != nil {
		return m.executeFunc(req)
	}
	return ipc.Response{OK: true}, nil
}

func (m *mockExecutor) Close() error {
	m.closed = true
	return nil
}

// mockFactory implements ExecutorFactory for testing.
type mockFactory struct {
	executeFunc func(req ipc.Request) (ipc.Response, error)
	newErr      error
	running     bool
}

func (m *mockFactory) NewExecutor() (executor.Executor, error) {
	if m.newErr != nil {
		return nil, m.newErr
	}
	return &mockExecutor{executeFunc: m.executeFunc}, nil
}

func (m *mockFactory) IsRunning() bool {
	return m.running
}

// setMockFactory replaces the package execFactory until the test ends.
func setMockFactory(t *testing.T, f ExecutorFactory) {
	old := execFactory
	execFactory = f
	t.Cleanup(func() {
		execFactory = old
		Debug = false
		JSONOutput = false
		NoColor = false
	})
}

// captureOutput runs fn and returns what it wrote to stdout and stderr.
func captureOutput(t *testing.T, fn func()) (stdout, stderr string) {
	t.Helper()
	oldOut, oldErr := os.Stdout, os.Stderr
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout, os.Stderr = outW, errW

	outCh := make(chan string)
	errCh := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, outR)
		outCh <- buf.String()
	}()
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, errR)
		errCh <- buf.String()
	}()

	defer func() {
		os.Stdout, os.Stderr = oldOut, oldErr
	}()
	fn()
	outW.Close()
	errW.Close()
	return <-outCh, <-errCh
}

// useConfigFile points the CLI at a config file with the given contents.
func useConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	old := ConfigPath
	ConfigPath = path
	t.Cleanup(func() { ConfigPath = old })
	return path
}

func statusResponse(status ipc.StatusData) func(req ipc.Request) (ipc.Response, error) {
	return func(req ipc.Request) (ipc.Response, error) {
		return ipc.SuccessResponse(status), nil
	}
}

func TestOutputSuccess(t *testing.T) {
	enableJSONOutput(t)

	var err error
	stdout, _ := captureOutput(t, func() {
		err = outputSuccess(map[string]string{"message": "test"})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if result["ok"] != true {
		t.Errorf("expected ok=true, got %v", result["ok"])
	}
	data, ok := result["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data to be map, got %T", result["data"])
	}
	if data["message"] != "test" {
		t.Errorf("expected message=test, got %v", data["message"])
	}
}

func TestOutputSuccess_TextOK(t *testing.T) {
	stdout, _ := captureOutput(t, func() {
		_ = outputSuccess(nil)
	})
	if stdout != "OK\n" {
		t.Errorf("got %q, want %q", stdout, "OK\n")
	}
}

func TestOutputError(t *testing.T) {
	enableJSONOutput(t)

	var err error
	_, stderr := captureOutput(t, func() {
		err = outputError("something went wrong")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "something went wrong" {
		t.Errorf("expected error message 'something went wrong', got %v", err.Error())
	}
	if !IsPrintedError(err) {
		t.Error("outputError result should be a printed error")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(stderr), &result); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if result["ok"] != false {
		t.Errorf("expected ok=false, got %v", result["ok"])
	}
	if result["error"] != "something went wrong" {
		t.Errorf("expected error='something went wrong', got %v", result["error"])
	}
}

func TestIsPrintedError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"printed", &printedError{msg: "boom"}, true},
		{"wrapped", fmt.Errorf("run: %w", &printedError{msg: "boom"}), true},
	}
	for _, tt := range tests {
		if got := IsPrintedError(tt.err); got != tt.want {
			t.Errorf("%s: IsPrintedError() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRunStatus_NotRunning(t *testing.T) {
	setMockFactory(t, &mockFactory{running: false})
	enableJSONOutput(t)

	var err error
	stdout, _ := captureOutput(t, func() {
		err = runStatus(nil, nil)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	data, ok := result["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data to be map, got %T", result["data"])
	}
	if data["running"] != false {
		t.Errorf("expected running=false, got %v", data["running"])
	}
}

func TestRunStatus_NotRunningText(t *testing.T) {
	setMockFactory(t, &mockFactory{running: false})

	stdout, _ := captureOutput(t, func() {
		_ = runStatus(nil, nil)
	})
	if stdout != "Not running (start with: aide chat)\n" {
		t.Errorf("got %q", stdout)
	}
}

func TestRunStatus_Running(t *testing.T) {
	var gotCmd string
	setMockFactory(t, &mockFactory{
		running: true,
		executeFunc: func(req ipc.Request) (ipc.Response, error) {
			gotCmd = req.Cmd
			return ipc.SuccessResponse(ipc.StatusData{
				Running:      true,
				Conversation: "default",
				Status:       "connected",
				State:        "open",
				Messages:     3,
			}), nil
		},
	})

	var err error
	stdout, _ := captureOutput(t, func() {
		err = runStatus(nil, nil)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCmd != ipc.CmdStatus {
		t.Errorf("sent %q, want %q", gotCmd, ipc.CmdStatus)
	}
	want := "connected\nconversation: default\nstate: open\nmessages: 3\n"
	if stdout != want {
		t.Errorf("got %q, want %q", stdout, want)
	}
}

func TestRunStatus_ExecutorError(t *testing.T) {
	setMockFactory(t, &mockFactory{running: true, newErr: errors.New("dial failed")})

	var err error
	_, stderr := captureOutput(t, func() {
		err = runStatus(nil, nil)
	})
	if !IsPrintedError(err) {
		t.Fatalf("expected printed error, got %v", err)
	}
	if stderr != "Error: dial failed\n" {
		t.Errorf("got %q", stderr)
	}
}

func TestRunReconnect(t *testing.T) {
	tests := []struct {
		name       string
		factory    *mockFactory
		wantErr    bool
		wantStdout string
		wantStderr string
	}{
		{
			name:       "not running",
			factory:    &mockFactory{running: false},
			wantErr:    true,
			wantStderr: "Error: chat session not running (start with: aide chat)\n",
		},
		{
			name: "reconnected",
			factory: &mockFactory{running: true, executeFunc: func(req ipc.Request) (ipc.Response, error) {
				if req.Cmd != ipc.CmdReconnect {
					return ipc.ErrorResponse("unexpected " + req.Cmd), nil
				}
				return ipc.SuccessResponse(ipc.StatusData{Running: true, Status: "connected", URL: "ws://localhost:8000/chat/ws/default"}), nil
			}},
			wantStdout: "connected\nurl: ws://localhost:8000/chat/ws/default\n",
		},
		{
			name: "server refused",
			factory: &mockFactory{running: true, executeFunc: func(req ipc.Request) (ipc.Response, error) {
				return ipc.ErrorResponse("connection refused"), nil
			}},
			wantErr:    true,
			wantStderr: "Error: connection refused\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMockFactory(t, tt.factory)

			var err error
			stdout, stderr := captureOutput(t, func() {
				err = runReconnect(nil, nil)
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("runReconnect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if stdout != tt.wantStdout {
				t.Errorf("stdout = %q, want %q", stdout, tt.wantStdout)
			}
			if stderr != tt.wantStderr {
				t.Errorf("stderr = %q, want %q", stderr, tt.wantStderr)
			}
		})
	}
}

func TestRunDisconnect(t *testing.T) {
	var gotCmd string
	setMockFactory(t, &mockFactory{running: true, executeFunc: func(req ipc.Request) (ipc.Response, error) {
		gotCmd = req.Cmd
		return statusResponse(ipc.StatusData{Running: true, Status: "disconnected"})(req)
	}})

	stdout, _ := captureOutput(t, func() {
		if err := runDisconnect(nil, nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	if gotCmd != ipc.CmdDisconnect {
		t.Errorf("sent %q, want %q", gotCmd, ipc.CmdDisconnect)
	}
	if stdout != "OK\n" {
		t.Errorf("got %q", stdout)
	}
}

func TestTryExpandCommand(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"st", "status"},
		{"hi", "history"},
		{"ch", "chat"},
		{"ver", "version"},
		{"rec", "reconnect"},
		{"d", "disconnect"},
		{"status", ""},
		{"xyz", ""},
	}
	for _, tt := range tests {
		if got := tryExpandCommand(tt.prefix); got != tt.want {
			t.Errorf("tryExpandCommand(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestExecuteArgs_Unknown(t *testing.T) {
	if recognized, _ := ExecuteArgs(nil); recognized {
		t.Error("empty args should not be recognized")
	}
	if recognized, _ := ExecuteArgs([]string{"navigate", "example.com"}); recognized {
		t.Error("unknown command should not be recognized")
	}
}

func TestExecuteArgs_ResetsFlags(t *testing.T) {
	setMockFactory(t, &mockFactory{running: true, executeFunc: statusResponse(ipc.StatusData{
		Running: true, Status: "connected", State: "open", Conversation: "default",
	})})

	var recognized bool
	var err error
	stdout, _ := captureOutput(t, func() {
		recognized, err = ExecuteArgs([]string{"st", "--json"})
	})
	if !recognized || err != nil {
		t.Fatalf("ExecuteArgs() = %v, %v", recognized, err)
	}
	if !strings.Contains(stdout, `"status":"connected"`) && !strings.Contains(stdout, `"status": "connected"`) {
		t.Errorf("expected JSON status output, got %q", stdout)
	}
	if JSONOutput {
		t.Error("JSONOutput should be reset after ExecuteArgs")
	}
	if f := rootCmd.PersistentFlags().Lookup("json"); f.Changed {
		t.Error("--json flag should be reset after ExecuteArgs")
	}
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func TestLoadConfig_FileThenFlags(t *testing.T) {
	useConfigFile(t, `
[server]
url = "ws://aide.internal:9000"
conversation = "from-file"
`)
	cmd := newConfigCommand()
	if err := cmd.Flags().Set(config.FlagConversation, "from-flag"); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Server.URL != "ws://aide.internal:9000" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Server.Conversation != "from-flag" {
		t.Errorf("Server.Conversation = %q", cfg.Server.Conversation)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	useConfigFile(t, `
[server]
wire_format = "xml"
`)
	if _, err := loadConfig(newConfigCommand()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadConfig_Debug(t *testing.T) {
	useConfigFile(t, "")
	Debug = true
	t.Cleanup(func() { Debug = false })

	cfg, err := loadConfig(newConfigCommand())
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Development {
		t.Errorf("Log = %+v, want debug development", cfg.Log)
	}
}

func TestLoadConfig_SessionConfig(t *testing.T) {
	session := config.Default()
	session.Server.Conversation = "live"
	sessionConfig = session
	t.Cleanup(func() { sessionConfig = nil })

	cfg, err := loadConfig(newConfigCommand())
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Server.Conversation != "live" {
		t.Errorf("Server.Conversation = %q, want live", cfg.Server.Conversation)
	}
	if cfg == session {
		t.Error("loadConfig must copy the session configuration")
	}
}

func TestPinFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	fs.Bool("debug", false, "")
	if err := fs.Parse([]string{"--attempts=3", "--transport=gorilla", "--debug"}); err != nil {
		t.Fatal(err)
	}

	pinned := pinFlags(fs)

	// The REPL resets the original flags.
	fs.VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	cfg := config.Default()
	if err := config.ApplyFlags(cfg, pinned); err != nil {
		t.Fatal(err)
	}
	if cfg.Connection.AttemptLimit != 3 {
		t.Errorf("AttemptLimit = %d, want 3", cfg.Connection.AttemptLimit)
	}
	if cfg.Connection.Transport != config.TransportGorilla {
		t.Errorf("Transport = %q, want gorilla", cfg.Connection.Transport)
	}
}

func healthServer(t *testing.T, code int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRunHealth(t *testing.T) {
	url := healthServer(t, http.StatusOK, `{"status":"healthy","service":"aide","version":"1.0"}`)
	useConfigFile(t, fmt.Sprintf(`
[server]
url = %q

[health]
retries = 0
timeout = "2s"
interval = "10ms"
`, url))

	var err error
	stdout, _ := captureOutput(t, func() {
		err = runHealth(healthCmd, nil)
	})
	if err != nil {
		t.Fatalf("runHealth() error = %v", err)
	}
	wantPrefix := "http" + strings.TrimPrefix(url, "ws") + " healthy (200)"
	if !strings.HasPrefix(stdout, wantPrefix) {
		t.Errorf("got %q, want prefix %q", stdout, wantPrefix)
	}
	if !strings.HasSuffix(stdout, " v1.0\n") {
		t.Errorf("got %q, want version suffix", stdout)
	}
}

func TestRunHealth_Unavailable(t *testing.T) {
	url := healthServer(t, http.StatusServiceUnavailable, `{}`)
	useConfigFile(t, fmt.Sprintf(`
[server]
url = %q

[health]
retries = 0
timeout = "2s"
interval = "10ms"
`, url))

	var err error
	stdout, stderr := captureOutput(t, func() {
		err = runHealth(healthCmd, nil)
	})
	if !IsPrintedError(err) {
		t.Fatalf("expected printed error, got %v", err)
	}
	if !strings.Contains(stdout, "unavailable (503)") {
		t.Errorf("stdout = %q", stdout)
	}
	if stderr != "AIde server not detected. Is it running?\n" {
		t.Errorf("stderr = %q", stderr)
	}
}

// seedHistory stores contents as alternating user and assistant messages.
func seedHistory(t *testing.T, path, conversation string, contents ...string) {
	t.Helper()
	store, err := history.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	for i, c := range contents {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		if err := store.Append(context.Background(), conversation, chat.NewMessage(role, c)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRunHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	useConfigFile(t, fmt.Sprintf(`
[history]
path = %q
`, dbPath))

	// No database yet.
	var err error
	_, stderr := captureOutput(t, func() {
		err = runHistory(historyCmd, nil)
	})
	if !IsPrintedError(err) || stderr != "No history recorded yet\n" {
		t.Fatalf("err = %v, stderr = %q", err, stderr)
	}

	seedHistory(t, dbPath, "default", "first question", "first answer")
	seedHistory(t, dbPath, "other", "elsewhere")

	stdout, _ := captureOutput(t, func() {
		err = runHistory(historyCmd, nil)
	})
	if err != nil {
		t.Fatalf("runHistory() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), stdout)
	}
	if !strings.HasSuffix(lines[0], "user: first question") || !strings.HasSuffix(lines[1], "assistant: first answer") {
		t.Errorf("unexpected transcript %q", stdout)
	}

	stdout, _ = captureOutput(t, func() {
		err = runHistory(historyCmd, []string{"other"})
	})
	if err != nil || !strings.HasSuffix(strings.TrimSpace(stdout), "user: elsewhere") {
		t.Errorf("err = %v, stdout = %q", err, stdout)
	}

	if err := historyCmd.Flags().Set("clear", "true"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = historyCmd.Flags().Set("clear", "false") })
	stdout, _ = captureOutput(t, func() {
		err = runHistory(historyCmd, nil)
	})
	if err != nil || stdout != "Deleted 2 messages from default\n" {
		t.Errorf("err = %v, stdout = %q", err, stdout)
	}
}

func TestRunConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aide", "config.toml")
	ConfigPath = path
	t.Cleanup(func() { ConfigPath = "" })

	stdout, _ := captureOutput(t, func() {
		if err := runConfigInit(configInitCmd, nil); err != nil {
			t.Errorf("runConfigInit() error = %v", err)
		}
	})
	if stdout != "Wrote "+path+"\n" {
		t.Errorf("got %q", stdout)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Server.URL != config.Default().Server.URL {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}

	var initErr error
	_, stderr := captureOutput(t, func() {
		initErr = runConfigInit(configInitCmd, nil)
	})
	if initErr == nil || !strings.Contains(stderr, "already exists") {
		t.Errorf("second init: err = %v, stderr = %q", initErr, stderr)
	}
}

func TestRunConfigShow(t *testing.T) {
	useConfigFile(t, `
[server]
conversation = "shown"
`)
	stdout, _ := captureOutput(t, func() {
		if err := runConfigShow(newConfigCommand(), nil); err != nil {
			t.Errorf("runConfigShow() error = %v", err)
		}
	})
	if !strings.Contains(stdout, `conversation = "shown"`) {
		t.Errorf("got %q", stdout)
	}
}

func TestVersion(t *testing.T) {
	stdout, _ := captureOutput(t, func() {
		if err := versionCmd.RunE(versionCmd, nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	if !strings.HasPrefix(stdout, "aide version dev (go") {
		t.Errorf("got %q", stdout)
	}
}

func TestRunChat_AlreadyRunning(t *testing.T) {
	setMockFactory(t, &mockFactory{running: true})

	var err error
	_, stderr := captureOutput(t, func() {
		err = runChat(chatCmd, nil)
	})
	if !IsPrintedError(err) {
		t.Fatalf("expected printed error, got %v", err)
	}
	if !strings.Contains(stderr, "already running") {
		t.Errorf("stderr = %q", stderr)
	}
}
