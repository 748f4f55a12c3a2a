// Package pipeline composes artifact loading, preprocessing and scoring behind
// a single Predict call. A Pipeline is immutable once built and may be shared
// by any number of goroutines without locking.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/okian/churn/internal/domain/artifact"
	"github.com/okian/churn/internal/domain/model"
	"github.com/okian/churn/internal/domain/preprocess"
	"github.com/okian/churn/internal/domain/scoring"
	"github.com/okian/churn/models"
)

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	extra   preprocess.ExtraFieldsPolicy
	workers int
}

// WithExtraFields selects whether unknown record keys are rejected or ignored.
func WithExtraFields(p preprocess.ExtraFieldsPolicy) Option {
	return func(o *options) {
		if p.Valid() {
			o.extra = p
		}
	}
}

// WithBatchWorkers bounds the goroutines PredictBatch uses. Non-positive values keep the default.
func WithBatchWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// Pipeline scores raw customer records.
type Pipeline struct {
	bundle  *artifact.Bundle
	pre     *preprocess.Preprocessor
	scorer  *scoring.Scorer
	workers int
}

// Load reads the four artifacts from disk and builds a pipeline. Any artifact
// problem fails here, never at first prediction.
func Load(featuresPath, encoderPath, scalerPath, modelPath string, opts ...Option) (*Pipeline, error) {
	b, err := artifact.Load(featuresPath, encoderPath, scalerPath, modelPath)
	if err != nil {
		return nil, err
	}
	return New(b, opts...)
}

// LoadFS builds a pipeline from artifacts stored in fsys.
func LoadFS(fsys fs.FS, paths artifact.Paths, opts ...Option) (*Pipeline, error) {
	b, err := artifact.LoadFS(fsys, paths)
	if err != nil {
		return nil, err
	}
	return New(b, opts...)
}

// LoadDefault builds a pipeline from the bundle embedded in the binary.
func LoadDefault(opts ...Option) (*Pipeline, error) {
	return LoadFS(models.FS, DefaultPaths(), opts...)
}

// DefaultPaths names the artifact files of the embedded bundle. The same
// names are used when loading from an artifact directory.
func DefaultPaths() artifact.Paths {
	return artifact.Paths{
		Features: models.FeaturesFile,
		Encoder:  models.EncoderFile,
		Scaler:   models.ScalerFile,
		Model:    models.ModelFile,
	}
}

// New builds a pipeline over an already validated bundle.
func New(b *artifact.Bundle, opts ...Option) (*Pipeline, error) {
	o := options{extra: preprocess.ExtraReject, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}

	pre, err := preprocess.New(b, preprocess.WithExtraFields(o.extra))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", artifact.ErrArtifactLoad, err)
	}
	sc, err := scoring.New(b.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", artifact.ErrArtifactLoad, err)
	}
	if sc.Width() != len(pre.Columns()) {
		return nil, fmt.Errorf("%w: %w", artifact.ErrArtifactLoad,
			&scoring.DimensionMismatchError{Want: sc.Width(), Got: len(pre.Columns())})
	}
	return &Pipeline{bundle: b, pre: pre, scorer: sc, workers: o.workers}, nil
}

// Preprocess encodes and scales one record.
func (p *Pipeline) Preprocess(rec model.FeatureRecord) (model.FeatureVector, error) {
	return p.pre.Transform(rec)
}

// Score applies the linear model to a vector produced by Preprocess.
func (p *Pipeline) Score(v model.FeatureVector) (model.Prediction, error) {
	return p.scorer.Score(v)
}

// Predict scores one raw record.
func (p *Pipeline) Predict(rec model.FeatureRecord) (model.Prediction, error) {
	v, err := p.pre.Transform(rec)
	if err != nil {
		return model.Prediction{}, err
	}
	return p.scorer.Score(v)
}

// BatchResult is the outcome for one record of a batch.
type BatchResult struct {
	Index      int
	Prediction model.Prediction
	Err        error
}

// PredictBatch scores records independently on a bounded worker group.
// Results keep input order and a failing record does not affect the others.
// When ctx is cancelled the remaining records carry ctx.Err() and the same
// error is returned.
func (p *Pipeline) PredictBatch(ctx context.Context, records []model.FeatureRecord) ([]BatchResult, error) {
	results := make([]BatchResult, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range records {
		results[i].Index = i
		if err := gctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Prediction, results[i].Err = p.Predict(records[i])
			return nil
		})
	}
	_ = g.Wait() // per-record errors live in results

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// Columns returns a copy of the canonical vector layout.
func (p *Pipeline) Columns() []string {
	return append([]string(nil), p.pre.Columns()...)
}

// Bundle exposes the loaded artifacts. Callers must treat them as read-only.
func (p *Pipeline) Bundle() *artifact.Bundle { return p.bundle }

// ExtraFields reports how unknown record keys are handled.
func (p *Pipeline) ExtraFields() preprocess.ExtraFieldsPolicy { return p.pre.ExtraFields() }

// IsRecordError reports whether err was caused by the record itself rather
// than by the pipeline.
func IsRecordError(err error) bool {
	return errors.Is(err, preprocess.ErrUnknownCategory) ||
		errors.Is(err, preprocess.ErrMissingFeature) ||
		errors.Is(err, preprocess.ErrUnexpectedFeature) ||
		errors.Is(err, preprocess.ErrInvalidValue) ||
		errors.Is(err, scoring.ErrUndefinedScore)
}
