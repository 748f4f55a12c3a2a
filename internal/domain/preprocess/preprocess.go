// Package preprocess turns raw customer records into model-ready feature
// vectors: categorical fields are one-hot encoded, numeric fields are
// standardized, and the two blocks are concatenated in trained column order.
package preprocess

import (
	"errors"
	"fmt"
	"slices"

	"github.com/okian/churn/internal/domain/artifact"
	"github.com/okian/churn/internal/domain/model"
)

// ExtraFieldsPolicy decides what happens to record keys the bundle does not know.
type ExtraFieldsPolicy string

// Extra field policies.
const (
	ExtraReject ExtraFieldsPolicy = "reject"
	ExtraIgnore ExtraFieldsPolicy = "ignore"
)

// Valid reports whether p is a known policy.
func (p ExtraFieldsPolicy) Valid() bool {
	return p == ExtraReject || p == ExtraIgnore
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithExtraFields sets the policy for unknown record keys. Unknown policies are ignored.
func WithExtraFields(p ExtraFieldsPolicy) Option {
	return func(pp *Preprocessor) {
		if p.Valid() {
			pp.extra = p
		}
	}
}

// slot binds a canonical feature to its encoder or scaler position.
type slot struct {
	name  string
	typ   model.FeatureType
	index int
}

// Preprocessor is immutable after New and safe for concurrent use.
type Preprocessor struct {
	encoder *artifact.Encoder
	scaler  *artifact.Scaler
	extra   ExtraFieldsPolicy

	slots   []slot
	known   map[string]struct{}
	columns []string
}

// New builds a preprocessor over a validated bundle. The feature-to-type
// mapping comes from the bundle's feature list, never from request values.
func New(b *artifact.Bundle, opts ...Option) (*Preprocessor, error) {
	if b == nil || b.Encoder == nil || b.Scaler == nil {
		return nil, errors.New("preprocess: incomplete artifact bundle")
	}
	p := &Preprocessor{
		encoder: b.Encoder,
		scaler:  b.Scaler,
		extra:   ExtraReject,
		known:   make(map[string]struct{}, len(b.Features.Features)),
		columns: b.Columns(),
	}
	for _, opt := range opts {
		opt(p)
	}

	encIdx := make(map[string]int, len(b.Encoder.Features))
	for i, f := range b.Encoder.Features {
		encIdx[f.Name] = i
	}
	scIdx := make(map[string]int, len(b.Scaler.Features))
	for i, f := range b.Scaler.Features {
		scIdx[f.Name] = i
	}

	for _, f := range b.Features.Features {
		var (
			idx int
			ok  bool
		)
		if f.Type == model.Categorical {
			idx, ok = encIdx[f.Name]
		} else {
			idx, ok = scIdx[f.Name]
		}
		if !ok {
			return nil, fmt.Errorf("preprocess: feature %q has no %s transform", f.Name, f.Type)
		}
		p.slots = append(p.slots, slot{name: f.Name, typ: f.Type, index: idx})
		p.known[f.Name] = struct{}{}
	}
	return p, nil
}

// Columns returns the output column names. The slice must not be modified.
func (p *Preprocessor) Columns() []string { return p.columns }

// ExtraFields returns the configured policy.
func (p *Preprocessor) ExtraFields() ExtraFieldsPolicy { return p.extra }

// Transform encodes and scales one record. Every problem found in the record
// is reported; the result joins them in canonical feature order followed by
// unexpected keys in sorted order, so the error is stable across calls.
func (p *Preprocessor) Transform(rec model.FeatureRecord) (model.FeatureVector, error) {
	encWidth := p.encoder.Width()
	values := make([]float64, len(p.columns))
	var errs []error

	for _, s := range p.slots {
		raw, ok := rec[s.name]
		if !ok {
			errs = append(errs, &FeatureError{Feature: s.name, Kind: ErrMissingFeature})
			continue
		}
		if s.typ == model.Categorical {
			cat, err := toCategory(raw)
			if err != nil {
				errs = append(errs, &FeatureError{Feature: s.name, Kind: ErrInvalidValue, Reason: err.Error()})
				continue
			}
			col, ok := p.encoder.Column(s.index, cat)
			if !ok {
				errs = append(errs, &UnknownCategoryError{Feature: s.name, Value: cat})
				continue
			}
			values[col] = 1
			continue
		}
		x, err := toNumber(raw)
		if err != nil {
			errs = append(errs, &FeatureError{Feature: s.name, Kind: ErrInvalidValue, Reason: err.Error()})
			continue
		}
		values[encWidth+s.index] = p.scaler.Scale(s.index, x)
	}

	if p.extra == ExtraReject && len(rec) > len(p.known)-countMissing(errs) {
		var extras []string
		for k := range rec {
			if _, ok := p.known[k]; !ok {
				extras = append(extras, k)
			}
		}
		slices.Sort(extras)
		for _, k := range extras {
			errs = append(errs, &FeatureError{Feature: k, Kind: ErrUnexpectedFeature})
		}
	}

	switch len(errs) {
	case 0:
		return model.FeatureVector{Columns: p.columns, Values: values}, nil
	case 1:
		return model.FeatureVector{}, errs[0]
	default:
		return model.FeatureVector{}, errors.Join(errs...)
	}
}

func countMissing(errs []error) int {
	n := 0
	for _, err := range errs {
		if errors.Is(err, ErrMissingFeature) {
			n++
		}
	}
	return n
}
