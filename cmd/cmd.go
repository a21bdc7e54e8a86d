// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/7blacky7/quantkit/envconfig"
	"github.com/7blacky7/quantkit/export"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// versionHandler - Gibt die Versionsinformation aus
func versionHandler(cmd *cobra.Command, _ []string) {
	cmd.Printf("quantkit version %s\n", export.Version)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	slog.SetLogLoggerLevel(envconfig.LogLevel())
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "quantkit",
		Short:         "Post-training neural network quantizer",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Commands erstellen
	quantizeCmd := newQuantizeCmd()
	envCmd := newEnvCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	appendEnvDocs(quantizeCmd, []envconfig.EnvVar{
		envVars["QUANTKIT_DEBUG"],
		envVars["QUANTKIT_HISTOGRAM_BINS"],
		envVars["QUANTKIT_MAX_BATCHES"],
		envVars["QUANTKIT_TPC"],
	})

	rootCmd.AddCommand(
		quantizeCmd,
		envCmd,
	)

	return rootCmd
}

// newQuantizeCmd - Erstellt den quantize Command
func newQuantizeCmd() *cobra.Command {
	quantizeCmd := &cobra.Command{
		Use:   "quantize MODEL CALIBRATION",
		Short: "Quantize a model manifest using calibration data",
		Args:  cobra.ExactArgs(2),
		RunE:  QuantizeHandler,
	}

	quantizeCmd.Flags().String("tpc", "", "Target platform model (YAML, overrides QUANTKIT_TPC)")
	quantizeCmd.Flags().String("metric", "mse", "Threshold selection metric: mse or noclipping")
	quantizeCmd.Flags().Bool("mixed-precision", false, "Enable bit-width search under the given budgets")
	quantizeCmd.Flags().Int64("weights-memory", 0, "Weights memory budget in bytes (0 = unconstrained)")
	quantizeCmd.Flags().Int64("activation-memory", 0, "Activation memory budget in bytes (0 = unconstrained)")
	quantizeCmd.Flags().Bool("analyze", false, "Report cosine similarity between float and quantized outputs")
	quantizeCmd.Flags().StringP("output", "o", "", "Write the quantized model to this file (JSON)")

	return quantizeCmd
}

// newEnvCmd - Erstellt den env Command
func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show quantkit environment configuration",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			vals := envconfig.Values()
			keys := make([]string, 0, len(vals))
			for k := range vals {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(os.Stdout, "%s=%q\n", k, vals[k])
			}
			return nil
		},
	}
}
