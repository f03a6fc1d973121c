package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ashwinachu030493/AIde/internal/cli/format"
	"github.com/Ashwinachu030493/AIde/internal/config"
	"github.com/Ashwinachu030493/AIde/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the AIde server is up",
	Long: `Calls the server's /health endpoint over HTTP. The address is derived from
the configured WebSocket URL (ws -> http, wss -> https).

With --watch the check repeats until interrupted, at most once per
health.interval. With --detailed the /health/detailed report is shown too.`,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().Bool("watch", false, "Keep checking until interrupted")
	healthCmd.Flags().Bool("detailed", false, "Also show the detailed health report")
	healthCmd.MarkFlagsMutuallyExclusive("watch", "detailed")
	rootCmd.AddCommand(healthCmd)
}

func newHealthClient(cfg *config.Config) (*health.Client, error) {
	base, err := cfg.HealthURL()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg, Debug)
	if err != nil {
		return nil, err
	}
	return health.NewClient(health.Config{
		BaseURL:   base,
		Timeout:   cfg.Health.Timeout,
		Retries:   cfg.Health.Retries,
		RetryWait: health.DefaultConfig().RetryWait,
		Interval:  cfg.Health.Interval,
	}, health.WithLogger(log)), nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	detailed, _ := cmd.Flags().GetBool("detailed")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return outputError(err.Error())
	}
	client, err := newHealthClient(cfg)
	if err != nil {
		return outputError(err.Error())
	}

	ctx := commandContext(cmd)
	opts := format.NewOutputOptions(JSONOutput, NoColor)

	if watch {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		err := client.Watch(ctx, func(st health.Status, checkErr error) {
			if JSONOutput {
				_ = outputJSON(os.Stdout, healthResult(client.BaseURL(), st, checkErr))
				return
			}
			_ = format.Health(os.Stdout, client.BaseURL(), st, checkErr, opts)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return outputError(err.Error())
		}
		return nil
	}

	st, checkErr := client.Check(ctx)
	if JSONOutput && !detailed {
		if checkErr != nil {
			return outputError(health.UnavailableMessage)
		}
		return outputSuccess(healthResult(client.BaseURL(), st, nil))
	}
	if !JSONOutput {
		_ = format.Health(os.Stdout, client.BaseURL(), st, checkErr, opts)
	}
	if checkErr != nil {
		debugf("health check failed: %v", checkErr)
		if JSONOutput {
			return outputError(health.UnavailableMessage)
		}
		return outputNotice(health.UnavailableMessage)
	}
	if !detailed {
		return nil
	}

	report, err := client.Detailed(ctx)
	if err != nil {
		return outputError(err.Error())
	}
	if JSONOutput {
		result := healthResult(client.BaseURL(), st, nil)
		result["detailed"] = report
		return outputSuccess(result)
	}
	return format.Detailed(os.Stdout, report)
}

func healthResult(url string, st health.Status, err error) map[string]any {
	result := map[string]any{
		"url":    url,
		"health": st,
	}
	if err != nil {
		result["error"] = err.Error()
	}
	return result
}
