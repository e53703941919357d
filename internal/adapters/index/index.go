// Package index holds the in-memory vector index mapping embedded catalog
// texts to embed ids. Entries are unit vectors; search is a dot-product scan,
// which is plenty at catalog scale. Snapshots persist to a gob file so a
// restart does not force a re-embed.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hibikido/hibikido/pkg/logger"
	"github.com/hibikido/hibikido/pkg/metrics"
)

// Kind says which catalog collection an entry came from.
type Kind string

const (
	KindSegment Kind = "segments"
	KindPreset  Kind = "presets"
)

// Hit is one search result. EmbedID resolves back through the catalog.
type Hit struct {
	EmbedID int64   `json:"embed_id"`
	Kind    Kind    `json:"kind"`
	Score   float64 `json:"score"`
}

type entry struct {
	Kind   Kind
	Hash   string
	Vector []float32
}

// Index is safe for concurrent use. Embed ids are positions in the entry
// slice and stay stable for the lifetime of the snapshot.
type Index struct {
	mu       sync.RWMutex
	embedder Embedder
	path     string
	entries  []entry
	byHash   map[string]int64
	log      logger.Logger
}

// New builds an index, loading the snapshot at the configured path when one
// exists.
func New(opts ...Option) (*Index, error) {
	idx := &Index{
		embedder: NewHashingEmbedder(),
		byHash:   make(map[string]int64),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.log == nil {
		idx.log = logger.Get().Named("index")
	}

	if idx.path != "" {
		if err := idx.load(); err != nil {
			return nil, err
		}
	}
	metrics.UpdateIndexEntries(len(idx.entries))
	return idx, nil
}

// Add embeds text and inserts it under kind. Identical text under the same
// kind is deduplicated: the existing embed id is returned with dup set and
// no new entry is made.
func (i *Index) Add(ctx context.Context, kind Kind, text string) (int64, bool, error) {
	hash := contentHash(kind, text)

	i.mu.Lock()
	defer i.mu.Unlock()

	if id, ok := i.byHash[hash]; ok {
		metrics.RecordIndexDuplicate()
		i.log.Debug(ctx, "duplicate text, reusing entry",
			logger.Int("embed_id", int(id)), logger.String("kind", string(kind)))
		return id, true, nil
	}

	vec, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return 0, false, fmt.Errorf("index add: %w", err)
	}

	id := int64(len(i.entries))
	i.entries = append(i.entries, entry{Kind: kind, Hash: hash, Vector: vec})
	i.byHash[hash] = id
	metrics.UpdateIndexEntries(len(i.entries))

	if err := i.saveLocked(); err != nil {
		i.log.Warn(ctx, "snapshot save failed", logger.Error(err))
	}
	return id, false, nil
}

// Search embeds the query and returns the topK closest entries by cosine
// similarity, best first. Entries with non-positive similarity are omitted.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	qvec, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	hits := make([]Hit, 0, len(i.entries))
	for id, e := range i.entries {
		score := dot(qvec, e.Vector)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{EmbedID: int64(id), Kind: e.Kind, Score: score})
	}

	sort.Slice(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count returns the number of indexed entries.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Reset drops every entry. Used before a rebuild; the snapshot is rewritten
// as entries are re-added.
func (i *Index) Reset(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = nil
	i.byHash = make(map[string]int64)
	metrics.UpdateIndexEntries(0)
	i.log.Info(ctx, "index reset")
}

// Close persists a final snapshot.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.saveLocked()
}

func contentHash(kind Kind, text string) string {
	sum := sha256.Sum256([]byte(string(kind) + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

type snapshot struct {
	Entries []entry
}

// saveLocked writes the snapshot atomically. Callers hold i.mu.
func (i *Index) saveLocked() error {
	if i.path == "" {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(i.path), ".index-*")
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(snapshot{Entries: i.entries}); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot close: %w", err)
	}
	if err := os.Rename(tmp.Name(), i.path); err != nil {
		return fmt.Errorf("snapshot rename: %w", err)
	}
	return nil
}

func (i *Index) load() error {
	f, err := os.Open(i.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("snapshot open: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("snapshot decode: %w", err)
	}

	i.entries = snap.Entries
	for id, e := range i.entries {
		i.byHash[e.Hash] = int64(id)
	}
	return nil
}
