package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/churn/internal/domain/model"
)

type predictFlags struct {
	file string
}

// predictOutput is one scored record as printed by churnctl.
type predictOutput struct {
	Index          int      `json:"index" yaml:"index"`
	Prediction     *int     `json:"prediction,omitempty" yaml:"prediction,omitempty"`
	Label          string   `json:"label,omitempty" yaml:"label,omitempty"`
	Proba          *float64 `json:"proba,omitempty" yaml:"proba,omitempty"`
	RetentionProba *float64 `json:"retention_proba,omitempty" yaml:"retention_proba,omitempty"`
	RawScore       *float64 `json:"raw_score,omitempty" yaml:"raw_score,omitempty"`
	Verdict        string   `json:"verdict,omitempty" yaml:"verdict,omitempty"`
	Error          string   `json:"error,omitempty" yaml:"error,omitempty"`
}

var errRecordsRejected = errors.New("some records were rejected")

func newPredictCmd(g *globalFlags) *cobra.Command {
	pf := &predictFlags{}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score one record or a list of records",
		Long: "Reads a YAML or JSON document holding either one record (a mapping of\n" +
			"feature name to value) or a sequence of records, and prints the churn\n" +
			"prediction for each.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPredict(cmd, g, pf)
		},
	}
	cmd.Flags().StringVarP(&pf.file, "file", "f", "", "Record file, or - for stdin (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runPredict(cmd *cobra.Command, g *globalFlags, pf *predictFlags) error {
	records, err := readRecords(cmd.InOrStdin(), pf.file)
	if err != nil {
		return err
	}
	p, err := loadPipeline(g)
	if err != nil {
		return err
	}

	results, err := p.PredictBatch(cmd.Context(), records)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	out := make([]predictOutput, len(results))
	failed := 0
	for i, r := range results {
		o := predictOutput{Index: r.Index}
		if r.Err != nil {
			o.Error = r.Err.Error()
			failed++
		} else {
			label := int(r.Prediction.Label)
			proba, retention, raw := r.Prediction.Probability, r.Prediction.RetentionProbability(), r.Prediction.RawScore
			o.Prediction = &label
			o.Label = r.Prediction.Label.String()
			o.Proba, o.RetentionProba, o.RawScore = &proba, &retention, &raw
			o.Verdict = verdict(r.Prediction)
		}
		out[i] = o
	}

	var v any = out
	if len(out) == 1 {
		v = out[0]
	}
	if err := write(cmd.OutOrStdout(), g.output, v); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errRecordsRejected, failed, len(out))
	}
	return nil
}

// verdict matches the wording of the web form.
func verdict(p model.Prediction) string {
	if p.Label == model.Churn {
		return fmt.Sprintf("likely to cancel (churn probability %.2f%%)", p.Probability*100)
	}
	return fmt.Sprintf("unlikely to cancel (retention probability %.2f%%)", p.RetentionProbability()*100)
}

// readRecords decodes one record or a sequence of records. YAML is a superset
// of JSON, so both formats go through the same decoder.
func readRecords(stdin io.Reader, path string) ([]model.FeatureRecord, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("read records: %s is empty", path)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	doc := &node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		doc = doc.Content[0]
	}
	switch doc.Kind {
	case yaml.MappingNode:
		var rec model.FeatureRecord
		if err := doc.Decode(&rec); err != nil {
			return nil, fmt.Errorf("parse record: %w", err)
		}
		return []model.FeatureRecord{rec}, nil
	case yaml.SequenceNode:
		var recs []model.FeatureRecord
		if err := doc.Decode(&recs); err != nil {
			return nil, fmt.Errorf("parse records: %w", err)
		}
		if len(recs) == 0 {
			return nil, fmt.Errorf("parse records: %s holds an empty list", path)
		}
		return recs, nil
	default:
		return nil, fmt.Errorf("parse records: want a mapping or a sequence of mappings")
	}
}
