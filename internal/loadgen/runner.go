package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/churn/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

type outcome struct {
	pred     Prediction
	scored   bool
	rejected bool
	err      error
}

// Run executes a complete load run and returns the collected statistics.
// The error is set when the service is unreachable or any response breaks
// the scoring invariants.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting churn load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("records", config.NumRecords),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Int("resample", config.Resample),
		logger.Int("invalidEvery", config.InvalidEvery))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, err
	}

	// Step 2: Read the schema and generate records
	schema, err := fetchSchema(ctx, client)
	if err != nil {
		return stats, err
	}
	records := generateRecords(ctx, config, schema, stats)

	// Step 3: Score concurrently
	outcomes := submitRecords(ctx, config, client, records, stats)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("load run interrupted: %w", err)
	}

	// Step 4: Verify every response
	var errs []error
	for i, o := range outcomes {
		if o.err != nil {
			continue
		}
		if o.scored {
			if err := CheckPrediction(o.pred); err != nil {
				stats.Violations++
				errs = append(errs, fmt.Errorf("record %d: %w", i, err))
				if config.Verbose {
					log.Warn(ctx, "invariant violated", logger.Int("record", i), logger.Error(err))
				}
			}
		}
		if expectInvalid(config, i) && o.scored {
			stats.Violations++
			errs = append(errs, fmt.Errorf("record %d: %w: unknown category was scored", i, ErrInvariant))
		}
	}

	// Step 5: Re-post a sample and compare
	errs = append(errs, resample(ctx, config, client, records, outcomes, stats)...)

	// Step 6: Save records to file
	if config.OutputFile != "" {
		if err := saveRecordsToFile(ctx, config.OutputFile, records); err != nil {
			log.Warn(ctx, "failed to save records to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if len(errs) > 0 {
		return stats, errors.Join(errs...)
	}
	log.Info(ctx, "load run completed successfully")
	return stats, nil
}

func expectInvalid(config *Config, i int) bool {
	return config.InvalidEvery > 0 && (i+1)%config.InvalidEvery == 0
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	status, _, err := client.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	// Any 200 is healthy; the body is the metrics exposition.
	if status != StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	return nil
}

// submitRecords posts records on a fixed worker pool. Outcomes keep input order.
func submitRecords(ctx context.Context, config *Config, client *HTTPClient, records []Record, stats *Stats) []outcome {
	logger.Get().Info(ctx, "submitting records", logger.Int("records", len(records)), logger.Int("workers", config.Workers))

	outcomes := make([]outcome, len(records))
	var submitted, scored, churned, rejected, failed atomic.Int64

	workers := max(1, min(config.Workers, len(records)))
	indexes := make(chan int, workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				pred, ok, err := predict(ctx, client, records[i])
				submitted.Add(1)
				switch {
				case err != nil:
					failed.Add(1)
					outcomes[i] = outcome{err: err}
				case ok:
					scored.Add(1)
					if pred.Prediction == 1 {
						churned.Add(1)
					}
					outcomes[i] = outcome{pred: pred, scored: true}
				default:
					rejected.Add(1)
					outcomes[i] = outcome{rejected: true}
				}
			}
		}()
	}

	go func() {
		defer close(indexes)
		for i := range records {
			select {
			case <-ctx.Done():
				return
			case indexes <- i:
			}
		}
	}()
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Scored = int(scored.Load())
	stats.Churned = int(churned.Load())
	stats.Rejected = int(rejected.Load())
	stats.Failed = int(failed.Load())
	return outcomes
}

// resample re-posts the first scored records and compares the answers bit for bit.
func resample(ctx context.Context, config *Config, client *HTTPClient, records []Record, outcomes []outcome, stats *Stats) []error {
	var errs []error
	for i := 0; i < len(records) && stats.Resampled < config.Resample; i++ {
		if !outcomes[i].scored {
			continue
		}
		again, ok, err := predict(ctx, client, records[i])
		stats.Resampled++
		if err != nil || !ok {
			stats.Nondetermined++
			errs = append(errs, fmt.Errorf("record %d: %w: re-post was not scored", i, ErrNondetermism))
			continue
		}
		if !SamePrediction(outcomes[i].pred, again) {
			stats.Nondetermined++
			errs = append(errs, fmt.Errorf("record %d: %w: proba %v then %v", i, ErrNondetermism, outcomes[i].pred.Proba, again.Proba))
		}
	}
	return errs
}

// saveRecordsToFile writes the generated records as a JSON array.
func saveRecordsToFile(ctx context.Context, filename string, records []Record) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	logger.Get().Info(ctx, "records saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var churnRate, recordsPerSecond float64
	if stats.Scored > 0 {
		churnRate = float64(stats.Churned) / float64(stats.Scored) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		recordsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("scored", stats.Scored),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("violations", stats.Violations),
		logger.Int("resampled", stats.Resampled),
		logger.Int("nondetermined", stats.Nondetermined),
		logger.Duration("duration", stats.Duration),
		logger.Float64("churnRate", churnRate),
		logger.Float64("recordsPerSecond", recordsPerSecond))
}
