package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ashwinachu030493/AIde/internal/ipc"
)

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the chat session",
	Long:  "Closes the connection of the running chat session and stops automatic reconnection. The session keeps running.",
	RunE:  runDisconnect,
}

func init() {
	rootCmd.AddCommand(disconnectCmd)
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	if !execFactory.IsRunning() {
		return outputError("chat session not running (start with: aide chat)")
	}

	status, err := sessionCommand(ipc.CmdDisconnect)
	if err != nil {
		return err
	}
	if JSONOutput {
		return outputSuccess(status)
	}
	return outputSuccess(nil)
}
