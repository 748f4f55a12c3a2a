// Package scoring applies a linear decision function to a feature vector and
// converts the raw score into the probability of churn.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/okian/churn/internal/domain/artifact"
	"github.com/okian/churn/internal/domain/model"
)

// ErrDimensionMismatch means a vector does not match the model layout. It is
// a contract violation between preprocessing and the model, not bad input.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// ErrUndefinedScore is returned when extreme inputs overflow the raw score to NaN.
var ErrUndefinedScore = errors.New("raw score is undefined")

// DimensionMismatchError carries the expected and actual vector widths.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%v: model expects %d columns, vector has %d", ErrDimensionMismatch, e.Want, e.Got)
}

// Unwrap returns ErrDimensionMismatch.
func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// Scorer evaluates a loaded linear model. It holds no mutable state.
type Scorer struct {
	weights   []float64
	intercept float64
}

// New returns a scorer for m. Weights must already be in vector layout order,
// which artifact.Load guarantees.
func New(m *artifact.LinearModel) (*Scorer, error) {
	if m == nil || len(m.Weights) == 0 {
		return nil, errors.New("scoring: model has no weights")
	}
	return &Scorer{weights: m.Weights, intercept: m.Intercept}, nil
}

// Width is the vector length the model expects.
func (s *Scorer) Width() int { return len(s.weights) }

// Raw returns dot(weights, v) + intercept.
func (s *Scorer) Raw(v model.FeatureVector) (float64, error) {
	if len(v.Values) != len(s.weights) {
		return 0, &DimensionMismatchError{Want: len(s.weights), Got: len(v.Values)}
	}
	z := floats.Dot(s.weights, v.Values) + s.intercept
	if math.IsNaN(z) {
		return 0, ErrUndefinedScore
	}
	return z, nil
}

// Score computes the prediction for one vector.
func (s *Scorer) Score(v model.FeatureVector) (model.Prediction, error) {
	z, err := s.Raw(v)
	if err != nil {
		return model.Prediction{}, err
	}
	return Decide(z), nil
}

// Decide thresholds z at zero and attaches its probability. A score of
// exactly zero is Retain with probability 0.5. For positive scores whose
// logistic rounds to 0.5 the probability is lifted to the next float, so
// Label == Churn if and only if Probability > 0.5.
func Decide(z float64) model.Prediction {
	p := Sigmoid(z)
	label := model.Retain
	if z > 0 {
		label = model.Churn
		if p <= 0.5 {
			p = math.Nextafter(0.5, 1)
		}
	} else if p > 0.5 {
		p = 0.5
	}
	return model.Prediction{Label: label, Probability: p, RawScore: z}
}

// Sigmoid is the logistic function, branched on sign so exp never overflows.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
