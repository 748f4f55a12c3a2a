package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/churn/internal/loadgen"
)

// Default configuration constants.
const (
	defaultNumRecords = 10000
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultResample   = 100
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numRecords   = flag.Int("records", defaultNumRecords, "Number of records to generate and score")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		resample     = flag.Int("resample", defaultResample, "Records re-posted for the determinism check")
		invalidEvery = flag.Int("invalid-every", 0, "Every Nth record carries an unknown category")
		seed         = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Generator seed")
		outputFile   = flag.String("output", "", "Write generated records to this JSON file")
		logFile      = flag.String("log", "", "Log file for run output (default: loadgen_TIMESTAMP.log)")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	closer, err := loadgen.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	config := &loadgen.Config{
		BaseURL:      *baseURL,
		NumRecords:   *numRecords,
		Workers:      *workers,
		Timeout:      *timeout,
		Resample:     *resample,
		InvalidEvery: *invalidEvery,
		Seed:         *seed,
		OutputFile:   *outputFile,
		Verbose:      *verbose,
	}

	if _, err := loadgen.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		closer.Close()
		os.Exit(1)
	}
}
