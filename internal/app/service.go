// Package service wires the churn pipeline to logging, metrics and request
// bookkeeping, and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/churn/internal/domain/artifact"
	"github.com/okian/churn/internal/domain/model"
	"github.com/okian/churn/internal/domain/pipeline"
	"github.com/okian/churn/internal/domain/preprocess"
	"github.com/okian/churn/internal/domain/scoring"
	"github.com/okian/churn/pkg/logger"
	"github.com/okian/churn/pkg/metrics"
)

// Sentinel errors returned by the service.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrBatchTooLarge = errors.New("batch too large")
	ErrEmptyBatch    = errors.New("batch is empty")
)

const nanosecondsPerMillisecond = 1e6

// Outcome is one scored record plus the id it was logged under.
type Outcome struct {
	RequestID  string
	Prediction model.Prediction
}

// BatchOutcome is the result of one batch call.
type BatchOutcome struct {
	RequestID string
	Results   []pipeline.BatchResult
}

// Service implements the API dependencies for the churn scorer.
type Service struct {
	mu sync.RWMutex

	pipeline *pipeline.Pipeline

	// Configuration
	paths        artifact.Paths
	embedded     bool
	extraFields  preprocess.ExtraFieldsPolicy
	batchWorkers int
	maxBatchSize int

	// State
	started   bool
	startedAt time.Time

	predictions atomic.Int64
	churned     atomic.Int64
	rejected    atomic.Int64
	batches     atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithArtifactPaths loads artifacts from disk instead of the embedded bundle.
// An all-empty value keeps the embedded bundle.
func WithArtifactPaths(p artifact.Paths) Option {
	return func(s *Service) {
		if p != (artifact.Paths{}) {
			s.paths = p
			s.embedded = false
		}
	}
}

// WithExtraFields sets the policy for unknown record keys ("reject" or "ignore").
func WithExtraFields(policy string) Option {
	return func(s *Service) {
		if p := preprocess.ExtraFieldsPolicy(policy); p.Valid() {
			s.extraFields = p
		}
	}
}

// WithBatchWorkers bounds concurrency inside a batch.
func WithBatchWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchWorkers = n
		}
	}
}

// WithMaxBatchSize caps the records accepted per batch.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithPipeline uses an already built pipeline; Start then skips loading.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(s *Service) {
		if p != nil {
			s.pipeline = p
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		embedded:     true,
		extraFields:  preprocess.ExtraReject,
		batchWorkers: runtime.NumCPU(),
		maxBatchSize: 1_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the artifacts and builds the pipeline. A load failure is fatal
// for the caller: the service cannot score without all four artifacts.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "loading churn artifacts...", logger.Bool("embedded", s.embedded && s.pipeline == nil))
	start := time.Now()

	if s.pipeline == nil {
		p, err := s.load()
		if err != nil {
			var le *artifact.LoadError
			name := artifact.NameBundle
			if errors.As(err, &le) {
				name = le.Artifact
			}
			metrics.RecordArtifactLoadError(name)
			s.logger.Error(ctx, "artifact load failed", logger.String("artifact", name), logger.Error(err))
			return fmt.Errorf("start service: %w", err)
		}
		s.pipeline = p
	}

	schema := s.pipeline.Schema()
	metrics.UpdateArtifacts(len(schema.Features), schema.Columns)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "churn service started",
		logger.Int("features", len(schema.Features)),
		logger.Int("columns", schema.Columns),
		logger.String("model_type", schema.ModelType),
		logger.String("handle_unknown", string(schema.HandleUnknown)),
		logger.String("extra_fields", schema.ExtraFields),
		logger.Int("batch_workers", s.batchWorkers),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

func (s *Service) load() (*pipeline.Pipeline, error) {
	opts := []pipeline.Option{
		pipeline.WithExtraFields(s.extraFields),
		pipeline.WithBatchWorkers(s.batchWorkers),
	}
	if s.embedded {
		return pipeline.LoadDefault(opts...)
	}
	return pipeline.Load(s.paths.Features, s.paths.Encoder, s.paths.Scaler, s.paths.Model, opts...)
}

// Stop marks the service as stopped. In-flight predictions complete normally.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "churn service stopped",
		logger.Int("predictions", int(s.predictions.Load())),
		logger.Int("rejected", int(s.rejected.Load())),
	)
}

func (s *Service) ready() (*pipeline.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.pipeline, nil
}

// Predict scores one record.
func (s *Service) Predict(ctx context.Context, rec model.FeatureRecord) (Outcome, error) {
	p, err := s.ready()
	if err != nil {
		return Outcome{}, err
	}
	id := uuid.NewString()

	t0 := time.Now()
	vec, err := p.Preprocess(rec)
	metrics.RecordPreprocessLatency(float64(time.Since(t0).Nanoseconds()) / nanosecondsPerMillisecond)
	if err != nil {
		s.reject(ctx, id, err)
		return Outcome{RequestID: id}, err
	}

	t1 := time.Now()
	pred, err := p.Score(vec)
	metrics.RecordScoringLatency(float64(time.Since(t1).Nanoseconds()) / nanosecondsPerMillisecond)
	if err != nil {
		s.reject(ctx, id, err)
		return Outcome{RequestID: id}, err
	}

	s.accept(pred)
	s.logger.Debug(ctx, "prediction",
		logger.String("request_id", id),
		logger.String("label", pred.Label.String()),
		logger.Float64("proba", pred.Probability),
		logger.Float64("raw_score", pred.RawScore),
	)
	return Outcome{RequestID: id, Prediction: pred}, nil
}

// PredictBatch scores records independently. Record errors are reported per
// item; the returned error is only set when the batch as a whole is refused
// or ctx ends.
func (s *Service) PredictBatch(ctx context.Context, records []model.FeatureRecord) (BatchOutcome, error) {
	p, err := s.ready()
	if err != nil {
		return BatchOutcome{}, err
	}
	id := uuid.NewString()
	switch {
	case len(records) == 0:
		return BatchOutcome{RequestID: id}, ErrEmptyBatch
	case len(records) > s.maxBatchSize:
		return BatchOutcome{RequestID: id}, fmt.Errorf("%w: %d records, limit %d", ErrBatchTooLarge, len(records), s.maxBatchSize)
	}

	s.batches.Add(1)
	metrics.RecordBatchSize(len(records))
	start := time.Now()

	results, err := p.PredictBatch(ctx, records)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			metrics.RecordPredictionError(ErrorKind(r.Err))
			s.rejected.Add(1)
			continue
		}
		s.accept(r.Prediction)
	}

	s.logger.Info(ctx, "batch scored",
		logger.String("request_id", id),
		logger.Int("records", len(records)),
		logger.Int("failed", failed),
		logger.Duration("took", time.Since(start)),
	)
	if err != nil {
		return BatchOutcome{RequestID: id, Results: results}, fmt.Errorf("predict batch: %w", err)
	}
	return BatchOutcome{RequestID: id, Results: results}, nil
}

// Schema describes the expected input record.
func (s *Service) Schema(_ context.Context) (pipeline.Schema, error) {
	p, err := s.ready()
	if err != nil {
		return pipeline.Schema{}, err
	}
	return p.Schema(), nil
}

func (s *Service) accept(pred model.Prediction) {
	s.predictions.Add(1)
	if pred.Label == model.Churn {
		s.churned.Add(1)
	}
	metrics.RecordPrediction(pred.Label.String(), pred.Probability)
}

func (s *Service) reject(ctx context.Context, id string, err error) {
	kind := ErrorKind(err)
	s.rejected.Add(1)
	metrics.RecordPredictionError(kind)
	if kind == kindDimensionMismatch {
		// Artifacts and preprocessing disagree; every request will fail the same way.
		s.logger.Error(ctx, "vector does not match model", logger.String("request_id", id), logger.Error(err))
		return
	}
	s.logger.Debug(ctx, "record rejected",
		logger.String("request_id", id),
		logger.String("kind", kind),
		logger.Error(err),
	)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.started,
		"embedded":     s.embedded,
		"extraFields":  string(s.extraFields),
		"batchWorkers": s.batchWorkers,
		"maxBatchSize": s.maxBatchSize,
		"predictions":  s.predictions.Load(),
		"churned":      s.churned.Load(),
		"rejected":     s.rejected.Load(),
		"batches":      s.batches.Load(),
	}
	if s.started {
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
		stats["columns"] = len(s.pipeline.Columns())
		stats["extraFields"] = string(s.pipeline.ExtraFields())
	}
	return stats
}

// Error kinds used in metrics labels and API error codes.
const (
	kindUnknownCategory   = "unknown_category"
	kindMissingFeature    = "missing_feature"
	kindUnexpectedFeature = "unexpected_feature"
	kindInvalidValue      = "invalid_value"
	kindUndefinedScore    = "undefined_score"
	kindDimensionMismatch = "dimension_mismatch"
	kindCanceled          = "canceled"
	kindInternal          = "internal"
)

// ErrorKind classifies a prediction error for metrics and logs. When a record
// has several problems the first matching kind in this order wins.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, preprocess.ErrUnknownCategory):
		return kindUnknownCategory
	case errors.Is(err, preprocess.ErrMissingFeature):
		return kindMissingFeature
	case errors.Is(err, preprocess.ErrUnexpectedFeature):
		return kindUnexpectedFeature
	case errors.Is(err, preprocess.ErrInvalidValue):
		return kindInvalidValue
	case errors.Is(err, scoring.ErrUndefinedScore):
		return kindUndefinedScore
	case errors.Is(err, scoring.ErrDimensionMismatch):
		return kindDimensionMismatch
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return kindCanceled
	default:
		return kindInternal
	}
}
