package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fpang/beauty-retouch/internal/operation"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the retouching tools",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tTOOL\tFAMILY\tREGION")
		for _, t := range operation.Tools() {
			region := string(t.Region)
			switch {
			case region == "":
				region = "-"
			case t.RequiresRegion:
				region += " (required)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Category, t.Tool, t.Family, region)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}
