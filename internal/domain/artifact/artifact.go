// Package artifact loads and validates the four pre-trained churn artifacts:
// the ordered feature list, the categorical encoder, the numeric scaler and
// the linear model. Loaded values are immutable and safe for concurrent use.
package artifact

import (
	"github.com/okian/churn/internal/domain/model"
)

// UnknownPolicy controls how the encoder treats categories outside its vocabulary.
type UnknownPolicy string

// Unknown category policies.
const (
	// UnknownError rejects unseen categories.
	UnknownError UnknownPolicy = "error"
	// UnknownBucket routes unseen categories to a trailing <feature>_unknown column.
	UnknownBucket UnknownPolicy = "bucket"
)

const unknownSuffix = "unknown"

// FeatureSpec is one entry of the canonical feature list.
type FeatureSpec struct {
	Name string
	Type model.FeatureType
}

// FeatureList is the ordered input schema.
type FeatureList struct {
	Features []FeatureSpec
}

// Names returns the feature names in canonical order.
func (l *FeatureList) Names() []string {
	out := make([]string, len(l.Features))
	for i, f := range l.Features {
		out[i] = f.Name
	}
	return out
}

// EncodedFeature is the trained vocabulary of one categorical feature.
type EncodedFeature struct {
	Name       string
	Categories []string

	index  map[string]int
	offset int
}

// Width is the number of output columns for this feature.
func (f *EncodedFeature) Width(policy UnknownPolicy) int {
	if policy == UnknownBucket {
		return len(f.Categories) + 1
	}
	return len(f.Categories)
}

// Encoder one-hot encodes categorical features in trained order.
type Encoder struct {
	HandleUnknown UnknownPolicy
	Features      []EncodedFeature

	columns []string
}

// Width returns the number of encoded columns.
func (e *Encoder) Width() int { return len(e.columns) }

// Columns returns the encoded column names. The slice must not be modified.
func (e *Encoder) Columns() []string { return e.columns }

// Column returns the absolute column index for value of feature i. ok is
// false when the value is outside the vocabulary and the encoder has no
// unknown bucket.
func (e *Encoder) Column(i int, value string) (col int, ok bool) {
	f := &e.Features[i]
	if j, found := f.index[value]; found {
		return f.offset + j, true
	}
	if e.HandleUnknown == UnknownBucket {
		return f.offset + len(f.Categories), true
	}
	return 0, false
}

func (e *Encoder) build() {
	e.columns = e.columns[:0]
	offset := 0
	for i := range e.Features {
		f := &e.Features[i]
		f.offset = offset
		f.index = make(map[string]int, len(f.Categories))
		for j, c := range f.Categories {
			f.index[c] = j
			e.columns = append(e.columns, f.Name+"_"+c)
		}
		if e.HandleUnknown == UnknownBucket {
			e.columns = append(e.columns, f.Name+"_"+unknownSuffix)
		}
		offset += f.Width(e.HandleUnknown)
	}
}

// ScaledFeature holds the standardization parameters of one numeric feature.
type ScaledFeature struct {
	Name string
	Mean float64
	Std  float64
}

// Scaler standardizes numeric features.
type Scaler struct {
	Features []ScaledFeature
}

// Width returns the number of scaled columns.
func (s *Scaler) Width() int { return len(s.Features) }

// Columns returns the scaled column names in trained order.
func (s *Scaler) Columns() []string {
	out := make([]string, len(s.Features))
	for i, f := range s.Features {
		out[i] = f.Name
	}
	return out
}

// Scale returns (x - mean) / std for feature i. Std is non-zero by construction.
func (s *Scaler) Scale(i int, x float64) float64 {
	f := s.Features[i]
	return (x - f.Mean) / f.Std
}

// LinearModel is a binary linear classifier aligned to the encoder+scaler layout.
type LinearModel struct {
	ModelType string
	Columns   []string
	Weights   []float64
	Intercept float64
	Threshold float64
}

// Bundle is the validated set of artifacts from one training run.
type Bundle struct {
	Features FeatureList
	Encoder  *Encoder
	Scaler   *Scaler
	Model    *LinearModel
}

// Columns returns the canonical vector layout: encoder columns then scaler columns.
func (b *Bundle) Columns() []string {
	out := make([]string, 0, b.Encoder.Width()+b.Scaler.Width())
	out = append(out, b.Encoder.Columns()...)
	return append(out, b.Scaler.Columns()...)
}
