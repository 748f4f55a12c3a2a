package preprocess

import (
	"errors"
	"fmt"
)

// Sentinel errors for per-record rejections. They never affect the
// preprocessor itself; the next record is handled normally.
var (
	ErrUnknownCategory   = errors.New("unknown category")
	ErrMissingFeature    = errors.New("missing feature")
	ErrUnexpectedFeature = errors.New("unexpected feature")
	ErrInvalidValue      = errors.New("invalid value")
)

// UnknownCategoryError reports a categorical value outside the trained vocabulary.
type UnknownCategoryError struct {
	Feature string
	Value   string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("%v %q for feature %q", ErrUnknownCategory, e.Value, e.Feature)
}

// Unwrap returns ErrUnknownCategory.
func (e *UnknownCategoryError) Unwrap() error { return ErrUnknownCategory }

// FeatureError ties a missing, unexpected or invalid field to its name.
type FeatureError struct {
	Feature string
	Kind    error
	Reason  string
}

func (e *FeatureError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v %q", e.Kind, e.Feature)
	}
	return fmt.Sprintf("%v for feature %q: %s", e.Kind, e.Feature, e.Reason)
}

// Unwrap returns the kind so callers can use errors.Is.
func (e *FeatureError) Unwrap() error { return e.Kind }
