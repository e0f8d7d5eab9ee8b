package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"larpx402/internal/threat"
)

func newThreatsCmd(_ *app) *cobra.Command {
	var sample int
	cmd := &cobra.Command{
		Use:   "threats",
		Short: "List catalog threats with their suggested branding",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := threat.Catalog
			if sample > 0 {
				list = threat.Sample(sample)
			}
			return printThreats(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().IntVar(&sample, "sample", 0, "print n random threats instead of the whole catalog")
	return cmd
}

func printThreats(w io.Writer, list []threat.Threat) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "THREAT\tTYPE\tSEVERITY\tNAME\tSYMBOL")
	for _, t := range list {
		b := threat.Brand(t)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Name, t.Type, t.Severity, b.Name, b.Symbol)
	}
	return tw.Flush()
}
