package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ashwinachu030493/AIde/internal/config"
	"github.com/Ashwinachu030493/AIde/internal/daemon"
	"github.com/Ashwinachu030493/AIde/internal/ipc"
)

var chatCmd = &cobra.Command{
	Use:   "chat [conversation]",
	Short: "Start an interactive chat session",
	Long: `Connects to the AIde server and opens a chat prompt. The connection is
re-established automatically after a drop, with exponential backoff. After
the last attempt fails a notification offers a reload.

While the session runs, "aide status", "aide reconnect" and "aide disconnect"
control it from another terminal. Changes to the config file are picked up
without restarting.

Without a terminal on stdin the session runs without a prompt until
interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	if execFactory.IsRunning() {
		return outputError("a chat session is already running (see: aide status)")
	}

	debug := Debug
	flags := pinFlags(cmd.Flags())
	explicitPath := ConfigPath
	path, err := configPath()
	if err != nil {
		return outputError(err.Error())
	}
	var conversation string
	if len(args) == 1 {
		conversation = args[0]
	}

	load := func() (*config.Config, error) {
		cfg, err := readConfig(explicitPath, flags, debug)
		if err != nil {
			return nil, err
		}
		if conversation != "" {
			cfg.Server.Conversation = conversation
		}
		return cfg, nil
	}

	cfg, err := load()
	if err != nil {
		return outputError(err.Error())
	}
	log, err := newLogger(cfg, debug)
	if err != nil {
		return outputError(err.Error())
	}
	defer func() { _ = log.Sync() }()
	sessionConfig = cfg

	interactive := daemon.IsStdinTTY()
	d := daemon.New(daemon.Config{
		App:         cfg,
		Reload:      load,
		ConfigPath:  path,
		SocketPath:  ipc.DefaultSocketPath(),
		Logger:      log,
		Out:         os.Stdout,
		UseColor:    shouldUseColor(),
		Interactive: interactive,
		CommandExecutor: func(args []string) (bool, error) {
			recognized, err := ExecuteArgs(args)
			if IsPrintedError(err) {
				err = nil
			}
			return recognized, err
		},
	})

	// REPL commands talk to this session directly.
	old := execFactory
	execFactory = directFactory{handler: d.Handler()}
	defer func() { execFactory = old }()

	if !JSONOutput {
		endpoint, _ := cfg.Endpoint()
		fmt.Fprintf(os.Stdout, "aide %s: %s\n", cfg.Server.Conversation, endpoint)
		if interactive {
			fmt.Fprintln(os.Stdout, "Type /help for commands, /exit to leave.")
		}
	}
	log.Info("chat session starting",
		zap.String("conversation", cfg.Server.Conversation),
		zap.String("transport", cfg.Connection.Transport),
		zap.Bool("interactive", interactive),
	)

	if err := d.Run(commandContext(cmd)); err != nil && !errors.Is(err, context.Canceled) {
		return outputError(err.Error())
	}
	return nil
}
