package loadgen

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/churn/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0o600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "loadgen_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return file, nil
}

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	os.Stdout.WriteString(`Churn Load Generator
====================

Generates random valid customer records from the server's /schema, scores them
concurrently through POST /predict and checks every response:
prediction is 1 exactly when proba > 0.5, and proba lies in [0, 1].
A sample is re-posted to confirm identical records get identical scores.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -records int
        Number of records to generate and score (default 10000)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -resample int
        Records re-posted for the determinism check (default 100)
  -invalid-every int
        Every Nth record carries an unknown category and must be rejected (default 0, off)
  -seed uint
        Generator seed (default: current time)
  -output string
        Write generated records to this JSON file
  -log string
        Log file for run output (default: loadgen_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  go run ./cmd/loadgen -records 50000 -workers 16 -url http://localhost:8080
  go run ./cmd/loadgen -invalid-every 10 -seed 42 -output records.json
`)
}
