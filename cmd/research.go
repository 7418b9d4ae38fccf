package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/ipo-research-cli/internal/pipeline"
)

var (
	skipFiling   bool
	skipAnalysis bool
)

var researchCmd = &cobra.Command{
	Use:   "research <company-name>",
	Short: "Run the full research pipeline for one company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.close()

		res, err := d.pipeline.Run(cmd.Context(), args[0], pipeline.RunOptions{
			SkipFiling:   skipFiling,
			SkipAnalysis: skipAnalysis,
		})
		printRunReport(cmd, &res.Report)
		// A degraded run still produced the record; only an abort is an
		// error exit.
		return err
	},
}

func printRunReport(cmd *cobra.Command, report *pipeline.RunReport) {
	cmd.Printf("run %s: %s\n", report.RunID, report.Status)
	for _, stage := range report.Stages {
		line := fmt.Sprintf("  %-20s %s", stage.Name, stage.Status)
		if stage.Duration != "" {
			line += " (" + stage.Duration + ")"
		}
		if stage.Detail != "" {
			line += " - " + stage.Detail
		}
		cmd.Println(line)
	}
	for _, artifact := range report.Artifacts {
		cmd.Printf("  wrote %s\n", artifact)
	}
	if report.Diagnostics > 0 {
		cmd.Printf("  %d diagnostics on record\n", report.Diagnostics)
	}
}

func init() {
	researchCmd.Flags().BoolVar(&skipFiling, "skip-filing", false, "skip filing download and LLM extraction")
	researchCmd.Flags().BoolVar(&skipAnalysis, "skip-analysis", false, "skip the AI narrative report")
	rootCmd.AddCommand(researchCmd)
}
