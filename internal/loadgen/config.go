// Package loadgen drives a running churn server with generated records and
// checks every response against the scoring invariants.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the service
	NumRecords   int           // Number of records to generate
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	Resample     int           // Records re-posted to check determinism
	InvalidEvery int           // Every Nth record gets an unknown category; 0 disables
	Seed         uint64        // Generator seed; equal seeds give equal records
	OutputFile   string        // Optional JSON dump of generated records
	Verbose      bool          // Log every violation
}

// Record is one generated customer.
type Record map[string]any

// Feature mirrors one entry of GET /schema.
type Feature struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Categories []string `json:"categories,omitempty"`
	Mean       *float64 `json:"mean,omitempty"`
	Std        *float64 `json:"std,omitempty"`
}

// Schema mirrors GET /schema.
type Schema struct {
	ModelType string    `json:"model_type"`
	Columns   int       `json:"columns"`
	Features  []Feature `json:"features"`
}

// Prediction mirrors a POST /predict success body.
type Prediction struct {
	RequestID  string  `json:"request_id"`
	Prediction int     `json:"prediction"`
	Label      string  `json:"label"`
	Proba      float64 `json:"proba"`
	RawScore   float64 `json:"raw_score"`
}

// Stats holds run statistics.
type Stats struct {
	Generated     int
	Submitted     int
	Scored        int
	Churned       int
	Rejected      int
	Failed        int
	Violations    int
	Resampled     int
	Nondetermined int
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}
