package main

import (
	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.close()

		runs, err := d.store.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			cmd.Println("no runs recorded")
			return nil
		}
		for _, run := range runs {
			cmd.Printf("%s  %-10s %-20s %s\n",
				run.StartedAt.Format("2006-01-02 15:04"),
				run.Status,
				run.Company,
				run.ID,
			)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
