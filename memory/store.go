package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/wjabrac/omndx/logging"
)

// Record is one stored memory entry. Records are append-only: never mutated
// after insertion and removed only by Clear. Seq is the insertion order index
// used as the final ranking tie-break.
type Record struct {
	ID       string
	Text     string
	Metadata map[string]any
	Seq      int
}

// Embedder converts text to vector embeddings for the semantic index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// IndexState reports which search path a store was built with. The state is
// decided once at construction and never changes for the store's lifetime.
type IndexState int

const (
	// LexicalFallback ranks by deterministic term frequency and position.
	LexicalFallback IndexState = iota
	// SemanticActive ranks by vector similarity via the embedded chromem index.
	SemanticActive
)

// String returns the string representation of the index state.
func (s IndexState) String() string {
	if s == SemanticActive {
		return "semantic"
	}
	return "lexical"
}

const collectionName = "memories"

// Options configure store construction.
type Options struct {
	// Embedder enables the semantic index. Without one the store always uses
	// the lexical fallback.
	Embedder Embedder
	// Logger receives the one-time fallback warning when semantic index
	// initialization fails. Defaults to NoOp.
	Logger logging.Logger
}

// Store holds text records and answers nearest-match queries. With an
// embedder it attaches a chromem vector collection (SemanticActive);
// otherwise, or if index initialization fails, it degrades to a
// deterministic ranked lexical match (LexicalFallback).
//
// Concurrency: an RWMutex serializes appends so the insertion-order
// invariant used for tie-breaks cannot corrupt.
type Store struct {
	mu       sync.RWMutex
	records  []Record
	state    IndexState
	embedder Embedder
	col      *chromem.Collection
	logger   logging.Logger
}

// NewStore creates a memory store, probing for the semantic index once.
func NewStore(optFns ...func(o *Options)) *Store {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Store{state: LexicalFallback, logger: opts.Logger}
	if opts.Embedder == nil {
		return s
	}
	col, err := newCollection()
	if err != nil {
		opts.Logger.Warn("semantic index unavailable, using lexical fallback", "error", err)
		return s
	}
	s.state = SemanticActive
	s.embedder = opts.Embedder
	s.col = col
	return s
}

func newCollection() (*chromem.Collection, error) {
	return chromem.NewDB().CreateCollection(collectionName, nil, nil)
}

// State reports the search path fixed at construction.
func (s *Store) State() IndexState { return s.state }

// IsSemanticEnabled reports whether the vector index was available at
// construction. The answer never changes afterwards.
func (s *Store) IsSemanticEnabled() bool { return s.state == SemanticActive }

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Insert appends a record. Metadata is copied and opaque to the store. In
// semantic mode the text is embedded and indexed as well.
func (s *Store) Insert(ctx context.Context, text string, metadata map[string]any) (Record, error) {
	rec := Record{ID: uuid.NewString(), Text: text, Metadata: copyMetadata(metadata)}

	var embedding []float32
	if s.state == SemanticActive {
		var err error
		embedding, err = s.embedder.Embed(ctx, text)
		if err != nil {
			return Record{}, fmt.Errorf("embed record: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Seq = len(s.records)
	if s.state == SemanticActive {
		doc := chromem.Document{
			ID:        rec.ID,
			Content:   text,
			Embedding: embedding,
			Metadata:  map[string]string{"seq": strconv.Itoa(rec.Seq)},
		}
		if err := s.col.AddDocument(ctx, doc); err != nil {
			return Record{}, fmt.Errorf("index record: %w", err)
		}
	}
	s.records = append(s.records, rec)
	return rec, nil
}

// Query returns up to k records, most relevant first. Semantic mode ranks by
// vector similarity; lexical mode is fully deterministic: term frequency
// descending, first-occurrence position ascending, insertion order ascending.
func (s *Store) Query(ctx context.Context, text string, k int) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.state == SemanticActive {
		return s.querySemantic(ctx, text, k)
	}
	return s.queryLexical(text, k), nil
}

func (s *Store) querySemantic(ctx context.Context, text string, k int) ([]Record, error) {
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil, nil
	}
	limit := k
	if limit > len(s.records) {
		// chromem rejects result counts above the collection size
		limit = len(s.records)
	}
	results, err := s.col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic query: %w", err)
	}

	byID := make(map[string]Record, len(s.records))
	for _, rec := range s.records {
		byID[rec.ID] = rec
	}
	out := make([]Record, 0, len(results))
	for _, res := range results {
		if rec, ok := byID[res.ID]; ok {
			out = append(out, rec.copy())
		}
	}
	return out, nil
}

// lexicalScore is the fallback relevance of one record for a query.
type lexicalScore struct {
	rec   Record
	freq  int
	first int
}

func (s *Store) queryLexical(text string, k int) []Record {
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) == 0 {
		return nil
	}

	s.mu.RLock()
	scored := make([]lexicalScore, 0, len(s.records))
	for _, rec := range s.records {
		lower := strings.ToLower(rec.Text)
		freq := 0
		first := -1
		for _, term := range terms {
			freq += strings.Count(lower, term)
			if idx := strings.Index(lower, term); idx >= 0 && (first < 0 || idx < first) {
				first = idx
			}
		}
		if freq > 0 {
			scored = append(scored, lexicalScore{rec: rec, freq: freq, first: first})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].freq != scored[j].freq {
			return scored[i].freq > scored[j].freq
		}
		if scored[i].first != scored[j].first {
			return scored[i].first < scored[j].first
		}
		return scored[i].rec.Seq < scored[j].rec.Seq
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	out := make([]Record, len(scored))
	for i, sc := range scored {
		out[i] = sc.rec.copy()
	}
	return out
}

// Clear drops all records and resets the index. The index mode fixed at
// construction does not change.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	if s.state != SemanticActive {
		return nil
	}
	col, err := newCollection()
	if err != nil {
		return fmt.Errorf("reset semantic index: %w", err)
	}
	s.col = col
	return nil
}

func (r Record) copy() Record {
	r.Metadata = copyMetadata(r.Metadata)
	return r
}

func copyMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
