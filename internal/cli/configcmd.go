package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/Ashwinachu030493/AIde/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Prints the configuration after applying the config file, AIDE_*
environment variables and flags, in TOML (or JSON with --json).`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return outputError(err.Error())
		}
		if JSONOutput {
			return outputSuccess(map[string]string{"path": path})
		}
		fmt.Fprintln(os.Stdout, path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return outputError(err.Error())
	}
	if JSONOutput {
		return outputSuccess(cfg)
	}
	if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
		return outputError(err.Error())
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	path, err := configPath()
	if err != nil {
		return outputError(err.Error())
	}
	if _, err := os.Stat(path); err == nil && !force {
		return outputError(fmt.Sprintf("%s already exists (use --force to overwrite)", path))
	}
	if err := config.Save(config.Default(), path); err != nil {
		return outputError(err.Error())
	}
	if JSONOutput {
		return outputSuccess(map[string]string{"path": path})
	}
	fmt.Fprintf(os.Stdout, "Wrote %s\n", path)
	return nil
}
