package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ashwinachu030493/AIde/internal/cli/format"
	"github.com/Ashwinachu030493/AIde/internal/ipc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chat session status",
	Long:  "Reports whether a chat session is running and, if so, its connection status, reconnect attempts and message count.",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if !execFactory.IsRunning() {
		if JSONOutput {
			return outputSuccess(map[string]any{
				"running": false,
			})
		}
		return format.Status(os.Stdout, ipc.StatusData{}, format.NewOutputOptions(JSONOutput, NoColor))
	}

	status, err := sessionCommand(ipc.CmdStatus)
	if err != nil {
		return err
	}
	if JSONOutput {
		return outputSuccess(status)
	}
	return format.Status(os.Stdout, status, format.NewOutputOptions(JSONOutput, NoColor))
}

// sessionCommand sends cmd to the running chat session and decodes the
// status it returns. Errors are already printed.
func sessionCommand(cmd string) (ipc.StatusData, error) {
	exec, err := execFactory.NewExecutor()
	if err != nil {
		return ipc.StatusData{}, outputError(err.Error())
	}
	defer func() { _ = exec.Close() }()

	debugf("request: %s", cmd)
	resp, err := exec.Execute(ipc.Request{Cmd: cmd})
	if err != nil {
		return ipc.StatusData{}, outputError(err.Error())
	}
	if !resp.OK {
		return ipc.StatusData{}, outputError(resp.Error)
	}

	var status ipc.StatusData
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return ipc.StatusData{}, outputError(err.Error())
	}
	return status, nil
}
