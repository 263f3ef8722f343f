package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/commons/internal/observability"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// RootConfig holds the persistent flags every subcommand sees.
type RootConfig struct {
	ConfigPath string
	DBPath     string
	LogLevel   string
	NoColor    bool

	Log zerolog.Logger
}

func NewRootCmd() *cobra.Command {
	rc := &RootConfig{Log: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:           "commons",
		Short:         "Commons — membership, auctions, governance, marketplace and rentals",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", "", "Path to config file (optional)")
	cmd.PersistentFlags().StringVar(&rc.DBPath, "db", "./commons.sqlite", "SQLite event journal database")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "warn", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().BoolVar(&rc.NoColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logger, err := observability.InitLogger(cmd.ErrOrStderr(), "commons", rc.LogLevel, rc.NoColor)
		if err != nil {
			return err
		}
		rc.Log = logger
		return nil
	}

	// Subcommands
	cmd.AddCommand(
		newConfigCmd(rc),
		newDemoCmd(rc),
		newEventsCmd(rc),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "commons (%s)\n", Version)
		},
	})

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
