package main

import (
	"github.com/spf13/cobra"
)

var corpsCmd = &cobra.Command{
	Use:   "corps",
	Short: "Manage the corp-code identity cache",
}

var corpsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download the full corp-code master and replace the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.close()

		if err := d.resolver.Refresh(cmd.Context()); err != nil {
			return err
		}
		cmd.Println("corp-code cache refreshed")
		return nil
	},
}

var corpsLookupCmd = &cobra.Command{
	Use:   "lookup <company-name>",
	Short: "Resolve a company name to its corp code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.close()

		ident, err := d.resolver.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("%s  corp_code=%s", ident.Name, ident.CorpCode)
		if ident.StockCode != "" {
			cmd.Printf("  stock_code=%s", ident.StockCode)
		}
		if ident.MarketSegment != "" {
			cmd.Printf("  market=%s", ident.MarketSegment)
		}
		cmd.Println()
		return nil
	},
}

func init() {
	corpsCmd.AddCommand(corpsRefreshCmd, corpsLookupCmd)
	rootCmd.AddCommand(corpsCmd)
}
