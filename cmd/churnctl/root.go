// churnctl scores customer records offline against an artifact bundle.
//
// Usage:
//
//	churnctl predict -f record.yaml [--artifacts dir] [-o json|yaml]
//	churnctl schema [--artifacts dir] [-o json|yaml]
//	churnctl validate [--artifacts dir]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	artifacts   string
	extraFields string
	output      string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "churnctl",
		Short: "Score telecom customers for churn risk",
		Long: "churnctl loads the encoder, scaler and linear model artifacts and scores\n" +
			"customer records without running the HTTP server.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	f := root.PersistentFlags()
	f.StringVar(&g.artifacts, "artifacts", "", "Directory holding features.yaml, encoder.yaml, scaler.yaml and model.yaml (default: embedded bundle)")
	f.StringVar(&g.extraFields, "extra-fields", "reject", "Unknown record keys: reject or ignore")
	f.StringVarP(&g.output, "output", "o", "yaml", "Output format: json or yaml")

	root.AddCommand(newPredictCmd(g))
	root.AddCommand(newSchemaCmd(g))
	root.AddCommand(newValidateCmd(g))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
