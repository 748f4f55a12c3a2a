// Package model contains the domain values passed between the pipeline stages.
package model

// FeatureType is the static type of an input feature, fixed at artifact load.
type FeatureType string

// Feature types.
const (
	Categorical FeatureType = "categorical"
	Numeric     FeatureType = "numeric"
)

// Valid reports whether t is a known feature type.
func (t FeatureType) Valid() bool {
	return t == Categorical || t == Numeric
}

// FeatureRecord is one raw customer record keyed by feature name. Values are
// categorical strings or numbers; key order carries no meaning.
type FeatureRecord map[string]any

// FeatureVector is the numeric input to the linear model: encoded categorical
// columns followed by scaled numeric columns.
type FeatureVector struct {
	// Columns names each position. It is shared with the pipeline and must
	// not be modified.
	Columns []string
	Values  []float64
}

// Len returns the vector width.
func (v FeatureVector) Len() int { return len(v.Values) }

// Label is the binary verdict.
type Label int

// Labels.
const (
	Retain Label = 0
	Churn  Label = 1
)

// String returns the verdict name used in logs, metrics and API payloads.
func (l Label) String() string {
	if l == Churn {
		return "churn"
	}
	return "retain"
}

// Prediction is the outcome for one record. Probability is the probability of
// Churn, and Label == Churn exactly when Probability > 0.5.
type Prediction struct {
	Label       Label   `json:"prediction" yaml:"prediction"`
	Probability float64 `json:"proba" yaml:"proba"`
	RawScore    float64 `json:"raw_score" yaml:"raw_score"`
}

// RetentionProbability is 1 - Probability.
func (p Prediction) RetentionProbability() float64 { return 1 - p.Probability }
