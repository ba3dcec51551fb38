package main

import (
	"os"

	"github.com/dfryer1193/blogcms/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
		cfg        config.Config
	)

	cmd := &cobra.Command{
		Use:           "blogcms",
		Short:         "Blog post CMS backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath, envFile)
			if err != nil {
				return err
			}
			cfg = loaded
			return configureLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), &cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file to read (skipped if missing)")

	cmd.AddCommand(
		newServeCmd(&cfg),
		newMigrateCmd(&cfg),
	)

	return cmd
}
