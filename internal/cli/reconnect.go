package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ashwinachu030493/AIde/internal/ipc"
)

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Reconnect the chat session",
	Long:  "Opens a fresh connection for the running chat session. Use after the session gave up reconnecting or was disconnected.",
	RunE:  runReconnect,
}

func init() {
	rootCmd.AddCommand(reconnectCmd)
}

func runReconnect(cmd *cobra.Command, args []string) error {
	if !execFactory.IsRunning() {
		return outputError("chat session not running (start with: aide chat)")
	}

	status, err := sessionCommand(ipc.CmdReconnect)
	if err != nil {
		return err
	}
	if JSONOutput {
		return outputSuccess(status)
	}

	fmt.Fprintln(os.Stdout, status.Status)
	if status.URL != "" {
		fmt.Fprintf(os.Stdout, "url: %s\n", status.URL)
	}
	return nil
}
