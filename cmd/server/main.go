package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"otc-service/internal/config"
	"otc-service/internal/util"
)

const envFileFlag = "env-file"

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "otc-service",
		Short: "InternConnect one-time credential service",
		Long: `
Issues and verifies the one-time email codes behind InternConnect signup
verification and password reset. Running without a subcommand starts the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.PersistentFlags().String(envFileFlag, "", "path to a .env file, overrides OTC_ENV_FILE")
	cmd.AddCommand(serveCommand(), migrateCommand())
	return cmd
}

// loadConfig resolves configuration and initializes the global logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString(envFileFlag); path != "" {
		if err := os.Setenv("OTC_ENV_FILE", path); err != nil {
			return nil, err
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
