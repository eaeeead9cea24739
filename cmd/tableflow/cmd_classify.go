package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/Lllllllleong/tableflow/internal/logging"
	"github.com/Lllllllleong/tableflow/internal/models"
	"github.com/Lllllllleong/tableflow/internal/pdf"
	"github.com/Lllllllleong/tableflow/internal/services"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file.pdf>...",
	Short: "Print the extraction strategy chosen for each PDF",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := services.LoadPipelineConfig(rootFlags.configPath)
	if err != nil {
		return err
	}
	classifier := services.NewClassifier(pdf.NewTextLayer(), cfg, logging.New("classifier"))

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTRATEGY\tCONFIDENCE\tSAMPLED\tNOTE")
	for i, path := range args {
		doc := models.NewDocument(path, path, i)
		if err := (services.LocalAcquirer{}).Acquire(cmd.Context(), doc); err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%v\n", path, err)
			continue
		}
		v := classifier.Classify(cmd.Context(), doc)
		note := ""
		if v.Indeterminate {
			note = "text layer unreadable"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\n", path, v.Strategy, v.Confidence, v.SampledPages, note)
	}
	return tw.Flush()
}
