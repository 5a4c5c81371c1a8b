package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/flanksource/clicky"
	"github.com/spf13/cobra"
)

var (
	settingsFile string
	settings     *Settings
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pgtoolkit",
		Short: "PostgreSQL auxiliary file toolkit",
		Long: `Parse, edit and render PostgreSQL auxiliary files: postgresql.conf,
pg_hba.conf, .pgpass and pg_service.conf. Files are rewritten with their
original formatting preserved wherever possible.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			clicky.Flags.UseFlags()

			loaded, err := LoadSettings(settingsFile)
			if err != nil {
				return err
			}
			settings = loaded
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "Settings file (YAML)")
	clicky.BindAllFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newConfCmd())
	rootCmd.AddCommand(newHbaCmd())
	rootCmd.AddCommand(newPgpassCmd())
	rootCmd.AddCommand(newServiceCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
