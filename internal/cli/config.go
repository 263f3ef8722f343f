package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/commons/internal/config"
)

func newConfigCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage deployment configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  commons config init -o commons.yaml
  commons config validate -f commons.toml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Long: `Create a new configuration file with default settings. The format
follows the extension: .yaml, .toml or .json.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created default configuration: %s\n", output)
			fmt.Fprintln(out, "\nEdit the file and run with:")
			fmt.Fprintf(out, "  commons demo --config %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "commons.yaml", "output config file path")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = rc.ConfigPath
			}
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			cfg, err := config.LoadFromFile(path)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration valid: %s\n", path)
			fmt.Fprintf(out, "  Points: rental=%d vote=%d settlement=%d\n",
				cfg.Ledger.Points.Rental, cfg.Ledger.Points.Vote, cfg.Ledger.Points.Settlement)
			fmt.Fprintf(out, "  Auction: item %d, increment %d wei, duration %q\n",
				cfg.Auction.ItemID, cfg.Auction.MinIncrement, cfg.Auction.Duration)
			fmt.Fprintf(out, "  DAO: quorum %d\n", cfg.DAO.Quorum)
			fmt.Fprintf(out, "  Event: %s at %s (%d tiers)\n", cfg.Event.Name, cfg.Event.Venue, len(cfg.Event.Tiers))
			fmt.Fprintf(out, "  Journal: %s\n", cfg.Journal.Type)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "file", "f", "", "path to config file (defaults to --config)")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
