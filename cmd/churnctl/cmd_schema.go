package main

import (
	"github.com/spf13/cobra"
)

func newSchemaCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the expected record: features, types and categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadPipeline(g)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), g.output, p.Schema())
		},
	}
}
