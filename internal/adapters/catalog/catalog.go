// Package catalog is the durable metadata store behind the sound archive:
// recordings, their segments, effects and presets, plus performance session
// history. SQLite with WAL mode; the audio itself lives on disk and is never
// read here.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hibikido/hibikido/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - initial schema
const currentSchemaVersion = 1

// Catalog wraps the SQLite handle. Safe for concurrent use; writes are
// serialized by the single-connection pool.
type Catalog struct {
	db  *sql.DB
	log logger.Logger
}

// Open creates or opens the catalog database at path, applying pragmas and
// the embedded schema. Idempotent.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Catalog{db: db, log: logger.Get().Named("catalog")}, nil
}

// Close releases the database handle.
func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// --- recordings ---

// AddRecording inserts a recording keyed by path.
func (c *Catalog) AddRecording(ctx context.Context, path, description string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO recordings (path, description) VALUES (?, ?)`, path, description)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: recording %s", ErrDuplicate, path)
	}
	if err != nil {
		return fmt.Errorf("add recording: %w", err)
	}
	c.log.Info(ctx, "recording added", logger.String("path", path))
	return nil
}

// GetRecording looks a recording up by path.
func (c *Catalog) GetRecording(ctx context.Context, path string) (Recording, error) {
	var r Recording
	err := c.db.QueryRowContext(ctx,
		`SELECT path, description, created_at FROM recordings WHERE path = ?`, path).
		Scan(&r.Path, &r.Description, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, fmt.Errorf("%w: recording %s", ErrNotFound, path)
	}
	if err != nil {
		return Recording{}, fmt.Errorf("get recording: %w", err)
	}
	return r, nil
}

// --- segmentations ---

// AddSegmentation inserts a segmentation run.
func (c *Catalog) AddSegmentation(ctx context.Context, s Segmentation) error {
	if s.Parameters == "" {
		s.Parameters = "{}"
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO segmentations (id, method, parameters, description) VALUES (?, ?, ?, ?)`,
		s.ID, s.Method, s.Parameters, s.Description)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: segmentation %s", ErrDuplicate, s.ID)
	}
	if err != nil {
		return fmt.Errorf("add segmentation: %w", err)
	}
	return nil
}

// GetSegmentation looks a segmentation up by id.
func (c *Catalog) GetSegmentation(ctx context.Context, id string) (Segmentation, error) {
	var s Segmentation
	err := c.db.QueryRowContext(ctx,
		`SELECT id, method, parameters, description, created_at FROM segmentations WHERE id = ?`, id).
		Scan(&s.ID, &s.Method, &s.Parameters, &s.Description, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Segmentation{}, fmt.Errorf("%w: segmentation %s", ErrNotFound, id)
	}
	if err != nil {
		return Segmentation{}, fmt.Errorf("get segmentation: %w", err)
	}
	return s, nil
}

// --- segments ---

const segmentColumns = `id, source_path, segmentation_id, window_start, window_end,
	description, embedding_text, embed_id, freq_low, freq_high, duration_s, created_at`

func scanSegment(row interface{ Scan(...any) error }) (Segment, error) {
	var s Segment
	err := row.Scan(&s.ID, &s.SourcePath, &s.SegmentationID, &s.WindowStart, &s.WindowEnd,
		&s.Description, &s.EmbeddingText, &s.EmbedID, &s.FreqLow, &s.FreqHigh, &s.DurationS,
		&s.CreatedAt)
	return s, err
}

// AddSegment inserts a segment and returns its row id.
func (c *Catalog) AddSegment(ctx context.Context, s Segment) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO segments (source_path, segmentation_id, window_start, window_end,
		                       description, embedding_text, embed_id, freq_low, freq_high, duration_s)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SourcePath, s.SegmentationID, s.WindowStart, s.WindowEnd,
		s.Description, s.EmbeddingText, s.EmbedID, s.FreqLow, s.FreqHigh, s.DurationS)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: segment embed id", ErrDuplicate)
	}
	if err != nil {
		return 0, fmt.Errorf("add segment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add segment: %w", err)
	}
	c.log.Info(ctx, "segment added",
		logger.Int("id", int(id)), logger.String("source", s.SourcePath))
	return id, nil
}

// GetSegmentByEmbedID resolves a vector index hit back to its segment.
func (c *Catalog) GetSegmentByEmbedID(ctx context.Context, embedID int64) (Segment, error) {
	s, err := scanSegment(c.db.QueryRowContext(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE embed_id = ?`, embedID))
	if errors.Is(err, sql.ErrNoRows) {
		return Segment{}, fmt.Errorf("%w: segment embed_id %d", ErrNotFound, embedID)
	}
	if err != nil {
		return Segment{}, fmt.Errorf("get segment: %w", err)
	}
	return s, nil
}

// SegmentsByRecording lists a recording's segments ordered by window start.
func (c *Catalog) SegmentsByRecording(ctx context.Context, sourcePath string) ([]Segment, error) {
	return c.querySegments(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE source_path = ? ORDER BY window_start`, sourcePath)
}

// ListSegments returns every segment, for index rebuilds.
func (c *Catalog) ListSegments(ctx context.Context) ([]Segment, error) {
	return c.querySegments(ctx, `SELECT `+segmentColumns+` FROM segments ORDER BY id`)
}

// SegmentsWithoutEmbedding lists segments not yet present in the index.
func (c *Catalog) SegmentsWithoutEmbedding(ctx context.Context) ([]Segment, error) {
	return c.querySegments(ctx,
		`SELECT `+segmentColumns+` FROM segments WHERE embed_id IS NULL ORDER BY id`)
}

func (c *Catalog) querySegments(ctx context.Context, query string, args ...any) ([]Segment, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetSegmentEmbedID links a segment to its index entry.
func (c *Catalog) SetSegmentEmbedID(ctx context.Context, id, embedID int64) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE segments SET embed_id = ? WHERE id = ?`, embedID, id)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: segment embed id %d", ErrDuplicate, embedID)
	}
	if err != nil {
		return fmt.Errorf("set segment embed id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set segment embed id: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: segment %d", ErrNotFound, id)
	}
	return nil
}

// --- effects ---

// AddEffect inserts an effect keyed by path.
func (c *Catalog) AddEffect(ctx context.Context, path, name, description string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO effects (path, name, description) VALUES (?, ?, ?)`, path, name, description)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: effect %s", ErrDuplicate, path)
	}
	if err != nil {
		return fmt.Errorf("add effect: %w", err)
	}
	c.log.Info(ctx, "effect added", logger.String("path", path), logger.String("name", name))
	return nil
}

// GetEffect looks an effect up by path.
func (c *Catalog) GetEffect(ctx context.Context, path string) (Effect, error) {
	var e Effect
	err := c.db.QueryRowContext(ctx,
		`SELECT path, name, description, created_at FROM effects WHERE path = ?`, path).
		Scan(&e.Path, &e.Name, &e.Description, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Effect{}, fmt.Errorf("%w: effect %s", ErrNotFound, path)
	}
	if err != nil {
		return Effect{}, fmt.Errorf("get effect: %w", err)
	}
	return e, nil
}

// --- presets ---

const presetColumns = `id, effect_path, parameters, description, embedding_text, embed_id, created_at`

func scanPreset(row interface{ Scan(...any) error }) (Preset, error) {
	var p Preset
	err := row.Scan(&p.ID, &p.EffectPath, &p.Parameters, &p.Description,
		&p.EmbeddingText, &p.EmbedID, &p.CreatedAt)
	return p, err
}

// AddPreset inserts a preset and returns its row id.
func (c *Catalog) AddPreset(ctx context.Context, p Preset) (int64, error) {
	if p.Parameters == "" {
		p.Parameters = "[]"
	}
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO presets (effect_path, parameters, description, embedding_text, embed_id)
		 VALUES (?, ?, ?, ?, ?)`,
		p.EffectPath, p.Parameters, p.Description, p.EmbeddingText, p.EmbedID)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: preset embed id", ErrDuplicate)
	}
	if err != nil {
		return 0, fmt.Errorf("add preset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add preset: %w", err)
	}
	return id, nil
}

// GetPresetByEmbedID resolves a vector index hit back to its preset.
func (c *Catalog) GetPresetByEmbedID(ctx context.Context, embedID int64) (Preset, error) {
	p, err := scanPreset(c.db.QueryRowContext(ctx,
		`SELECT `+presetColumns+` FROM presets WHERE embed_id = ?`, embedID))
	if errors.Is(err, sql.ErrNoRows) {
		return Preset{}, fmt.Errorf("%w: preset embed_id %d", ErrNotFound, embedID)
	}
	if err != nil {
		return Preset{}, fmt.Errorf("get preset: %w", err)
	}
	return p, nil
}

// PresetsByEffect lists an effect's presets.
func (c *Catalog) PresetsByEffect(ctx context.Context, effectPath string) ([]Preset, error) {
	return c.queryPresets(ctx,
		`SELECT `+presetColumns+` FROM presets WHERE effect_path = ? ORDER BY id`, effectPath)
}

// ListPresets returns every preset, for index rebuilds.
func (c *Catalog) ListPresets(ctx context.Context) ([]Preset, error) {
	return c.queryPresets(ctx, `SELECT `+presetColumns+` FROM presets ORDER BY id`)
}

func (c *Catalog) queryPresets(ctx context.Context, query string, args ...any) ([]Preset, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query presets: %w", err)
	}
	defer rows.Close()

	var out []Preset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPresetEmbedID links a preset to its index entry.
func (c *Catalog) SetPresetEmbedID(ctx context.Context, id, embedID int64) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE presets SET embed_id = ? WHERE id = ?`, embedID, id)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: preset embed id %d", ErrDuplicate, embedID)
	}
	if err != nil {
		return fmt.Errorf("set preset embed id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set preset embed id: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: preset %d", ErrNotFound, id)
	}
	return nil
}

// ClearEmbedIDs detaches every segment and preset from the vector index.
// Called at the start of a rebuild so fresh ids can be assigned without
// tripping the uniqueness constraints.
func (c *Catalog) ClearEmbedIDs(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `UPDATE segments SET embed_id = NULL`); err != nil {
		return fmt.Errorf("clear segment embed ids: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, `UPDATE presets SET embed_id = NULL`); err != nil {
		return fmt.Errorf("clear preset embed ids: %w", err)
	}
	return nil
}

// --- performances ---

// AddPerformance opens a performance session.
func (c *Catalog) AddPerformance(ctx context.Context, id string, date time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO performances (id, date) VALUES (?, ?)`, id, date)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: performance %s", ErrDuplicate, id)
	}
	if err != nil {
		return fmt.Errorf("add performance: %w", err)
	}
	c.log.Info(ctx, "performance opened", logger.String("id", id))
	return nil
}

// AddInvocation records a performer phrase against a performance.
func (c *Catalog) AddInvocation(ctx context.Context, inv Invocation) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO invocations (performance_id, text, time_offset_s, segment_id, effect_path)
		 VALUES (?, ?, ?, ?, ?)`,
		inv.PerformanceID, inv.Text, inv.TimeOffsetS, inv.SegmentID, inv.EffectPath)
	if err != nil {
		return 0, fmt.Errorf("add invocation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add invocation: %w", err)
	}
	return id, nil
}

// InvocationsByPerformance lists a session's invocations in insertion order.
func (c *Catalog) InvocationsByPerformance(ctx context.Context, performanceID string) ([]Invocation, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, performance_id, text, time_offset_s, segment_id, effect_path, created_at
		 FROM invocations WHERE performance_id = ? ORDER BY id`, performanceID)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		var inv Invocation
		if err := rows.Scan(&inv.ID, &inv.PerformanceID, &inv.Text, &inv.TimeOffsetS,
			&inv.SegmentID, &inv.EffectPath, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// --- stats ---

// GetStats counts catalog contents per collection.
func (c *Catalog) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM recordings`, &s.Recordings},
		{`SELECT COUNT(*) FROM segments`, &s.Segments},
		{`SELECT COUNT(*) FROM segments WHERE embed_id IS NOT NULL`, &s.SegmentsEmbedded},
		{`SELECT COUNT(*) FROM effects`, &s.Effects},
		{`SELECT COUNT(*) FROM presets`, &s.Presets},
		{`SELECT COUNT(*) FROM presets WHERE embed_id IS NOT NULL`, &s.PresetsEmbedded},
		{`SELECT COUNT(*) FROM performances`, &s.Performances},
		{`SELECT COUNT(*) FROM segmentations`, &s.Segmentations},
	}
	for _, c2 := range counts {
		if err := c.db.QueryRowContext(ctx, c2.query).Scan(c2.dst); err != nil {
			return Stats{}, fmt.Errorf("stats: %w", err)
		}
	}
	return s, nil
}
