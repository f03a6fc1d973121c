package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ashwinachu030493/AIde/internal/cli/format"
	"github.com/Ashwinachu030493/AIde/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [conversation]",
	Short: "Show or clear the stored conversation",
	Long: `Prints the locally stored messages of a conversation, oldest first.
The conversation defaults to server.conversation from the config.

Use --clear to delete the stored messages.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of most recent messages to show (0 for all)")
	historyCmd.Flags().Bool("clear", false, "Delete the stored messages")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	clearAll, _ := cmd.Flags().GetBool("clear")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return outputError(err.Error())
	}
	conversation := cfg.Server.Conversation
	if len(args) == 1 {
		conversation = args[0]
	}

	path, err := cfg.HistoryPath()
	if err != nil {
		return outputError(err.Error())
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if clearAll {
			return outputSuccess(nil)
		}
		return outputNotice("No history recorded yet")
	}

	store, err := history.Open(path)
	if err != nil {
		return outputError(err.Error())
	}
	defer store.Close()

	ctx := commandContext(cmd)
	if clearAll {
		n, err := store.Clear(ctx, conversation)
		if err != nil {
			return outputError(err.Error())
		}
		if JSONOutput {
			return outputSuccess(map[string]any{
				"conversation": conversation,
				"deleted":      n,
			})
		}
		fmt.Fprintf(os.Stdout, "Deleted %d messages from %s\n", n, conversation)
		return nil
	}

	msgs, err := store.Recent(ctx, conversation, limit)
	if err != nil {
		return outputError(err.Error())
	}
	if JSONOutput {
		return outputSuccess(msgs)
	}
	return format.Messages(os.Stdout, msgs, format.NewOutputOptions(JSONOutput, NoColor))
}
