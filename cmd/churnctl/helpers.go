package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/okian/churn/internal/domain/pipeline"
	"github.com/okian/churn/internal/domain/preprocess"
)

// loadPipeline builds the pipeline from --artifacts or the embedded bundle.
func loadPipeline(g *globalFlags) (*pipeline.Pipeline, error) {
	policy := preprocess.ExtraFieldsPolicy(g.extraFields)
	if !policy.Valid() {
		return nil, fmt.Errorf("--extra-fields must be reject or ignore, got %q", g.extraFields)
	}
	opts := []pipeline.Option{pipeline.WithExtraFields(policy)}
	if g.artifacts == "" {
		return pipeline.LoadDefault(opts...)
	}
	p := pipeline.DefaultPaths()
	return pipeline.Load(
		filepath.Join(g.artifacts, p.Features),
		filepath.Join(g.artifacts, p.Encoder),
		filepath.Join(g.artifacts, p.Scaler),
		filepath.Join(g.artifacts, p.Model),
		opts...,
	)
}

// write renders v in the selected output format.
func write(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
