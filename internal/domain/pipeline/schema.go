package pipeline

import (
	"github.com/okian/churn/internal/domain/artifact"
	"github.com/okian/churn/internal/domain/model"
)

// FeatureSchema describes one input field.
type FeatureSchema struct {
	Name       string            `json:"name" yaml:"name"`
	Type       model.FeatureType `json:"type" yaml:"type"`
	Categories []string          `json:"categories,omitempty" yaml:"categories,omitempty"`
	Mean       *float64          `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std        *float64          `json:"std,omitempty" yaml:"std,omitempty"`
}

// Schema is the input contract of a pipeline, in canonical feature order.
type Schema struct {
	ModelType     string                 `json:"model_type" yaml:"model_type"`
	HandleUnknown artifact.UnknownPolicy `json:"handle_unknown" yaml:"handle_unknown"`
	ExtraFields   string                 `json:"extra_fields" yaml:"extra_fields"`
	Columns       int                    `json:"columns" yaml:"columns"`
	Features      []FeatureSchema        `json:"features" yaml:"features"`
}

// Schema returns a fresh description of the expected record. Mutating it does
// not affect the pipeline.
func (p *Pipeline) Schema() Schema {
	b := p.bundle
	cats := make(map[string][]string, len(b.Encoder.Features))
	for _, f := range b.Encoder.Features {
		cats[f.Name] = f.Categories
	}
	scaled := make(map[string]artifact.ScaledFeature, len(b.Scaler.Features))
	for _, f := range b.Scaler.Features {
		scaled[f.Name] = f
	}

	s := Schema{
		ModelType:     b.Model.ModelType,
		HandleUnknown: b.Encoder.HandleUnknown,
		ExtraFields:   string(p.ExtraFields()),
		Columns:       len(p.pre.Columns()),
		Features:      make([]FeatureSchema, 0, len(b.Features.Features)),
	}
	for _, f := range b.Features.Features {
		entry := FeatureSchema{Name: f.Name, Type: f.Type}
		if f.Type == model.Categorical {
			entry.Categories = append([]string(nil), cats[f.Name]...)
		} else {
			sf := scaled[f.Name]
			mean, std := sf.Mean, sf.Std
			entry.Mean, entry.Std = &mean, &std
		}
		s.Features = append(s.Features, entry)
	}
	return s
}
