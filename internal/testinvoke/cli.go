package testinvoke

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/hibikido/hibikido/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "invoke_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the invocation exercise tool.
func ShowHelp() {
	os.Stdout.WriteString(`Hibikido Invocation Exercise Tool
=================================

Seeds a demo sound catalog over REST, fires invocation phrases and counts
the manifestations pushed back over WebSocket.

Usage:
  go run cmd/test-invoke/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9000")
  -invocations int
        Number of invocations to fire (default 16)
  -settle duration
        How long to wait for the scheduler to drain (default 15s)
  -timeout duration
        HTTP request timeout (default 10s)
  -log string
        Log file for test output (default: invoke_log_TIMESTAMP.log)
  -verbose
        Log every invocation and manifestation
  -help
        Show this help

The same database can be reused across runs; seeding tolerates existing
demo entries.
`)
}
