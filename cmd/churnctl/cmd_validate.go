package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the artifacts and report whether they form a consistent bundle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadPipeline(g)
			if err != nil {
				return fmt.Errorf("invalid artifacts: %w", err)
			}
			b := p.Bundle()
			source := "embedded bundle"
			if g.artifacts != "" {
				source = g.artifacts
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s: %s, %d features, %d columns (%d encoded, %d scaled), unknown categories: %s\n",
				source, b.Model.ModelType, len(b.Features.Features), len(b.Model.Weights),
				b.Encoder.Width(), b.Scaler.Width(), b.Encoder.HandleUnknown)
			return nil
		},
	}
}
