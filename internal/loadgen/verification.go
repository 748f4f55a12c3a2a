package loadgen

import (
	"fmt"
	"math"
)

// CheckPrediction verifies the scoring contract on one response: the
// probability is a number in [0, 1], the label is churn exactly when the
// probability exceeds one half, and the label text agrees with the number.
func CheckPrediction(p Prediction) error {
	switch {
	case math.IsNaN(p.Proba) || p.Proba < 0 || p.Proba > 1:
		return fmt.Errorf("%w: proba %v outside [0, 1]", ErrInvariant, p.Proba)
	case p.Prediction != 0 && p.Prediction != 1:
		return fmt.Errorf("%w: prediction %d is not 0 or 1", ErrInvariant, p.Prediction)
	case (p.Prediction == 1) != (p.Proba > 0.5):
		return fmt.Errorf("%w: prediction %d with proba %v", ErrInvariant, p.Prediction, p.Proba)
	case (p.Prediction == 1) != (p.RawScore > 0):
		return fmt.Errorf("%w: prediction %d with raw score %v", ErrInvariant, p.Prediction, p.RawScore)
	}
	want := "retain"
	if p.Prediction == 1 {
		want = "churn"
	}
	if p.Label != "" && p.Label != want {
		return fmt.Errorf("%w: label %q for prediction %d", ErrInvariant, p.Label, p.Prediction)
	}
	return nil
}

// SamePrediction reports whether two responses for the same record carry
// bit-identical scores.
func SamePrediction(a, b Prediction) bool {
	return a.Prediction == b.Prediction &&
		math.Float64bits(a.Proba) == math.Float64bits(b.Proba) &&
		math.Float64bits(a.RawScore) == math.Float64bits(b.RawScore)
}
