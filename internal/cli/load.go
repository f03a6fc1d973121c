package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Ashwinachu030493/AIde/internal/config"
	"github.com/Ashwinachu030493/AIde/internal/logging"
)

// sessionConfig is the configuration of the chat session running in this
// process, if any. Commands run from its REPL start from it.
var sessionConfig *config.Config

// loadConfig builds the effective configuration for cmd: file and
// environment (or the running session's configuration), then any flags set
// on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if sessionConfig != nil && ConfigPath == "" {
		c := *sessionConfig
		return finishConfig(&c, cmd.Flags(), Debug)
	}
	return readConfig(ConfigPath, cmd.Flags(), Debug)
}

// readConfig loads the config file at path (default location when empty)
// and applies the flags set on fs.
func readConfig(path string, fs *pflag.FlagSet, debug bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return finishConfig(cfg, fs, debug)
}

func finishConfig(cfg *config.Config, fs *pflag.FlagSet, debug bool) (*config.Config, error) {
	if err := config.ApplyFlags(cfg, fs); err != nil {
		return nil, fmt.Errorf("invalid flag: %w", err)
	}
	if debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	debugf("config: server=%s conversation=%s transport=%s", cfg.Server.URL, cfg.Server.Conversation, cfg.Connection.Transport)
	return cfg, nil
}

// pinFlags copies the config flags set on fs into a standalone flag set.
// The REPL resets command flags after every command; a pinned set keeps the
// overrides for later reloads.
func pinFlags(fs *pflag.FlagSet) *pflag.FlagSet {
	pinned := pflag.NewFlagSet("aide", pflag.ContinueOnError)
	config.RegisterFlags(pinned)
	fs.Visit(func(f *pflag.Flag) {
		if pinned.Lookup(f.Name) != nil {
			_ = pinned.Set(f.Name, f.Value.String())
		}
	})
	return pinned
}

// newLogger builds the logger described by cfg. Log output goes to stderr
// unless a log file is configured.
func newLogger(cfg *config.Config, debug bool) (*zap.Logger, error) {
	lc := logging.DefaultConfig()
	if debug {
		lc = logging.DebugConfig()
	}
	lc.Level = cfg.Log.Level
	lc.Development = lc.Development || cfg.Log.Development
	if cfg.Log.File != "" {
		lc.OutputPaths = []string{cfg.Log.File}
	}
	return logging.New(lc)
}

// configPath returns the config file in use.
func configPath() (string, error) {
	if ConfigPath != "" {
		return ConfigPath, nil
	}
	return config.DefaultPath()
}
