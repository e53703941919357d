package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/hibikido/hibikido/internal/testinvoke"
)

// Default configuration constants.
const (
	defaultInvocations = 16
	defaultTimeout     = 10 * time.Second
	defaultSettle      = 15 * time.Second
	defaultTestTimeout = 5 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9000", "Base URL of the service")
		invocations = flag.Int("invocations", defaultInvocations, "Number of invocations to fire")
		settle      = flag.Duration("settle", defaultSettle, "How long to wait for the scheduler to drain")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile     = flag.String("log", "", "Log file for test output (default: invoke_log_TIMESTAMP.log)")
		verbose     = flag.Bool("verbose", false, "Log every invocation and manifestation")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testinvoke.ShowHelp()
		return
	}

	// Setup logging
	if err := testinvoke.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	// Create test configuration
	config := &testinvoke.Config{
		BaseURL:        *baseURL,
		NumInvocations: *invocations,
		Timeout:        *timeout,
		SettleTime:     *settle,
		LogFile:        *logFile,
		Verbose:        *verbose,
	}

	// Run the exercise
	if err := testinvoke.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Exercise failed: " + err.Error() + "\n")
		return
	}
}
