package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/blobxfer/internal/cli/prompt"
	"github.com/marmos91/blobxfer/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with every default filled in.

The file is written to --config, or to $XDG_CONFIG_HOME/blobxfer/config.yaml.

Examples:
  # Create the default config
  blobxfer init

  # Overwrite an existing config without asking
  blobxfer init --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Overwrite %s?", path), initForce)
		if err != nil {
			return err
		}
		if !ok {
			return prompt.ErrAborted
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}
