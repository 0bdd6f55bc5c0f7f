package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "locator",
		Short: "Region > Province > Municipality cascade with map sync",
		Long: `locator keeps a three-level Spanish administrative selection consistent
with a map: choosing a municipality flies the map there, and dropping a marker
fills in the region, province and municipality it falls in.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if envFile == "" {
				return nil
			}
			// Variables already set in the environment win over the file.
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("env file not loaded", "path", envFile, "error", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before reading configuration")

	root.AddCommand(newServeCmd(), newResolveCmd(), newListCmd())
	return root
}
