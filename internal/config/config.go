// Package config defines server configuration structures and loading hooks.
//
// Conventions:
// - Defaults come from New(); Load() layers an optional YAML file and env vars on top.
// - External errors are wrapped via this package's sentinel errors.
package config

// Config contains process configuration for the hibikido server.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9000".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite catalog file.
	DBPath string `koanf:"db_path"`

	// IndexPath is the semantic index snapshot file.
	IndexPath string `koanf:"index_path"`

	// OverlapThreshold is the fraction of the smaller band's log-width two
	// frequency bands may share before colliding. Must be in (0, 1].
	OverlapThreshold float64 `koanf:"overlap_threshold"`

	// TickIntervalMS is the scheduler tick cadence in milliseconds.
	TickIntervalMS int `koanf:"tick_interval_ms"`

	// TopK bounds how many search results each invocation queues.
	TopK int `koanf:"top_k"`

	// Fallback fields applied when a catalog document omits them.
	DefaultFreqLow   float64 `koanf:"default_freq_low"`
	DefaultFreqHigh  float64 `koanf:"default_freq_high"`
	DefaultDurationS float64 `koanf:"default_duration_s"`

	// Embedder selects the embedding backend: "hash" or "openai".
	Embedder string `koanf:"embedder"`

	// EmbeddingModel names the remote model when Embedder is "openai".
	EmbeddingModel string `koanf:"embedding_model"`

	// ManifestBuffer sizes the channel between the scheduler callback and
	// the WebSocket broadcaster.
	ManifestBuffer int `koanf:"manifest_buffer"`

	// MaxImportErrors caps per-row diagnostics kept per CSV import.
	MaxImportErrors int `koanf:"max_import_errors"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9000",
		DBPath:           "hibikido.db",
		IndexPath:        "hibikido.index",
		OverlapThreshold: 0.2,
		TickIntervalMS:   100,
		TopK:             10,
		DefaultFreqLow:   200,
		DefaultFreqHigh:  2000,
		DefaultDurationS: 1.0,
		Embedder:         "hash",
		EmbeddingModel:   "text-embedding-3-small",
		ManifestBuffer:   256,
		MaxImportErrors:  100,
	}
}
