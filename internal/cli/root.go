// Package cli implements the palaver command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palaverhq/palaver/internal/config"
	"github.com/palaverhq/palaver/internal/logging"
)

var (
	configFile string
	loadedCfg  *config.Config
)

// Execute runs the CLI.
func Execute(version string) error {
	root := newRootCmd(version)
	return root.Execute()
}

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "palaver",
		Short:   "Palaver realtime conversation client",
		Long:    "Palaver keeps a local view of a realtime conversation in sync with its backend:\nmessages, presence, typing indicators, reactions, and read receipts.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			if configFile != "" {
				loader.SetConfigFile(configFile)
			}
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			loadedCfg = cfg
			logging.Init(logging.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	root.AddCommand(newChatCmd())
	return root
}

func mustConfig() (*config.Config, error) {
	if loadedCfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return loadedCfg, nil
}
