package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/bizimport/internal/importer"
)

func newEntitiesCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List the entity types and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, def := range importer.All() {
				fmt.Fprintf(tw, "%s\t%s\n", def.Type, def.Label)
				for _, f := range def.Fields {
					marker := ""
					if f.Required {
						marker = "required"
					}
					fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Name, f.Label, marker)
				}
			}
			return tw.Flush()
		},
	}
}
