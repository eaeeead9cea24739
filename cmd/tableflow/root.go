// tableflow extracts the tables of a batch of PDFs into one master dataset.
//
// Usage:
//
//	tableflow run --dir=<pdfs> [--out=dataset.csv] [--report=report.json]
//	tableflow run --catalog=<url> [--cache-dir=downloads] [--gcs-bucket=<bucket>]
//	tableflow classify <file.pdf>...
//	tableflow version
package main

import (
	"fmt"
	"os"

	"github.com/Lllllllleong/tableflow/internal/logging"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel   string
	logFormat  string
	configPath string
}

var rootCmd = &cobra.Command{
	Use:   "tableflow",
	Short: "Extract tables from PDFs into a single dataset",
	Long: "tableflow classifies each PDF by whether it has a text layer, extracts its\n" +
		"tables from the text layer or through OCR, cleans them and stacks every\n" +
		"table into one provenance-tagged dataset.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, err := logging.ParseLevel(rootFlags.logLevel)
		if err != nil {
			return err
		}
		logging.Init(level, rootFlags.logFormat, cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	f.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format: text or json")
	f.StringVarP(&rootFlags.configPath, "config", "c", os.Getenv("TABLEFLOW_CONFIG"), "Pipeline config YAML file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
