package testinvoke

import "time"

// Config holds the exerciser's settings.
type Config struct {
	// BaseURL of a running hibikido server.
	BaseURL string

	// NumInvocations to fire.
	NumInvocations int

	// Timeout per HTTP request.
	Timeout time.Duration

	// SettleTime to wait for the scheduler to drain after the last
	// invocation.
	SettleTime time.Duration

	// LogFile for test output. Empty generates a timestamped name.
	LogFile string

	// Verbose enables per-invocation logging.
	Verbose bool
}

// Stats accumulates results across the run.
type Stats struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	InvocationsSent int
	InvokeFailures  int
	TotalQueued     int
	Manifested      int64 // updated by the WS listener goroutine
	SeededSegments  int
	SeededPresets   int
}
