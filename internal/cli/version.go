package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the aide version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if JSONOutput {
			return outputSuccess(map[string]string{
				"version": Version,
				"go":      runtime.Version(),
			})
		}
		fmt.Fprintf(os.Stdout, "aide version %s (%s)\n", Version, runtime.Version())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
