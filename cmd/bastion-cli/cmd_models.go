package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/caarlos0/env/v10"
	"github.com/spf13/cobra"

	"bastion-server/internal/config"
	"bastion-server/internal/infrastructure/inference"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Model catalog commands",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List models in the catalog file",
	Long:  `List catalog models. PROVIDER READY reports whether the provider credentials in the environment are complete.`,
	RunE:  runModelsList,
}

type modelRow struct {
	config.ModelEntry
	ProviderReady bool `json:"providerReady"`
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)

	modelsListCmd.Flags().StringP("file", "f", config.DefaultModelsConfigFile, "Model catalog file")
	modelsListCmd.Flags().String("format", "table", "Output format: table, json")
}

func runModelsList(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	format, _ := cmd.Flags().GetString("format")

	models, err := config.LoadModelCatalog(file)
	if err != nil {
		return err
	}

	// only provider credentials are needed, so the full Load and its validation are skipped
	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	ready := inference.BuildProviderSettings(cfg)

	rows := make([]modelRow, 0, len(models))
	for _, m := range models {
		_, ok := ready[m.ProviderID]
		rows = append(rows, modelRow{ModelEntry: m, ProviderReady: ok})
	}
	return printModels(cmd.OutOrStdout(), rows, format)
}

func printModels(out io.Writer, rows []modelRow, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "table":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROVIDER\tPROVIDER READY\tCONTEXT\tIMAGE\tENABLED\tDEFAULT")
		for _, m := range rows {
			fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%t\t%t\t%t\n",
				m.ID, m.ProviderID, m.ProviderReady, m.ContextWindow, m.Image, m.Enabled, m.Default)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
