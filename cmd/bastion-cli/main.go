package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bastion-server/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bastion-cli",
	Short: "Bastion CLI - operator tooling for the Bastion API",
	Long: `bastion-cli runs database migrations, inspects the model catalog and
signs Paystack webhook payloads for local testing.

Examples:
  bastion-cli migrate up --database-url postgres://...
  bastion-cli models list --file config/models.yml
  bastion-cli webhook sign --secret sk_test_xxx --file event.json`,
	Version: config.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(webhookCmd)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
}
