package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/wjabrac/omndx/memory/embedder/hash"
)

// Interface compliance (compile-time assertions)
var _ Embedder = (*hash.Embedder)(nil)

func mustInsert(t *testing.T, s *Store, texts ...string) {
	t.Helper()
	for i, text := range texts {
		if _, err := s.Insert(context.Background(), text, map[string]any{"idx": i}); err != nil {
			t.Fatalf("insert %q failed: %v", text, err)
		}
	}
}

func texts(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Text
	}
	return out
}

func TestLexical_RankByFrequencyThenPosition(t *testing.T) {
	s := NewStore()
	if s.IsSemanticEnabled() {
		t.Fatalf("store without embedder must use lexical fallback")
	}
	mustInsert(t, s, "cat cat dog", "dog cat", "cat at start")

	res, err := s.Query(context.Background(), "cat", 3)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	want := []string{"cat cat dog", "cat at start", "dog cat"}
	got := texts(res)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank %d: expected %q, got %q (full order %v)", i, want[i], got[i], got)
		}
	}
}

func TestLexical_Deterministic(t *testing.T) {
	s := NewStore()
	mustInsert(t, s, "alpha beta", "beta alpha", "beta beta", "gamma beta")

	first, err := s.Query(context.Background(), "beta", 4)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := s.Query(context.Background(), "beta", 4)
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("result length changed: %d vs %d", len(again), len(first))
		}
		for j := range first {
			if again[j].ID != first[j].ID {
				t.Fatalf("ordering changed on repeat %d at rank %d", i, j)
			}
		}
	}
}

func TestLexical_TieBreakByInsertionOrder(t *testing.T) {
	s := NewStore()
	// identical text: same frequency, same first position
	mustInsert(t, s, "same text", "same text", "same text")

	res, err := s.Query(context.Background(), "same", 3)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	for i, r := range res {
		if r.Seq != i {
			t.Fatalf("expected stable insertion order, got seq %d at rank %d", r.Seq, i)
		}
	}
}

func TestLexical_ExcludesNonMatches(t *testing.T) {
	s := NewStore()
	mustInsert(t, s, "cat", "dog", "bird")

	res, err := s.Query(context.Background(), "cat", 10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res) != 1 || res[0].Text != "cat" {
		t.Fatalf("expected only matching record, got %v", texts(res))
	}
}

func TestQuery_LimitAndEmptyQuery(t *testing.T) {
	s := NewStore()
	mustInsert(t, s, "a b", "a c", "a d")

	res, _ := s.Query(context.Background(), "a", 2)
	if len(res) != 2 {
		t.Fatalf("expected 2 limited results, got %d", len(res))
	}
	res, _ = s.Query(context.Background(), "", 5)
	if len(res) != 0 {
		t.Fatalf("expected no results for empty query, got %d", len(res))
	}
	res, _ = s.Query(context.Background(), "a", 0)
	if len(res) != 0 {
		t.Fatalf("expected no results for k=0, got %d", len(res))
	}
}

func TestClear_RemovesAllRecords(t *testing.T) {
	s := NewStore()
	mustInsert(t, s, "one", "two")
	if err := s.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d records", s.Len())
	}
	res, err := s.Query(context.Background(), "one", 5)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("expected empty result after clear, got %v", texts(res))
	}
}

func TestSemantic_QueryRanksSimilarFirst(t *testing.T) {
	s := NewStore(func(o *Options) { o.Embedder = hash.New() })
	if !s.IsSemanticEnabled() {
		t.Fatalf("expected semantic mode with embedder attached")
	}
	mustInsert(t, s,
		"the quick brown fox",
		"an entirely unrelated sentence about databases",
		"quick brown fox jumps",
	)

	res, err := s.Query(context.Background(), "the quick brown fox", 2)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].Text != "the quick brown fox" {
		t.Fatalf("expected exact text first, got %q", res[0].Text)
	}
}

func TestSemantic_KLargerThanStore(t *testing.T) {
	s := NewStore(func(o *Options) { o.Embedder = hash.New() })
	mustInsert(t, s, "only entry")

	res, err := s.Query(context.Background(), "entry", 10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res))
	}
}

func TestSemantic_ModeFixedAcrossClear(t *testing.T) {
	s := NewStore(func(o *Options) { o.Embedder = hash.New() })
	mustInsert(t, s, "something")
	if err := s.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if !s.IsSemanticEnabled() {
		t.Fatalf("index mode must not change after clear")
	}
	// the store must still work after the index reset
	mustInsert(t, s, "fresh record")
	res, err := s.Query(context.Background(), "fresh record", 1)
	if err != nil {
		t.Fatalf("query after clear failed: %v", err)
	}
	if len(res) != 1 || res[0].Text != "fresh record" {
		t.Fatalf("unexpected result after clear: %v", texts(res))
	}
}

func TestInsert_ConcurrentAppendsKeepOrdering(t *testing.T) {
	s := NewStore()
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Insert(context.Background(), fmt.Sprintf("record %d", i), nil); err != nil {
				t.Errorf("insert failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != n {
		t.Fatalf("expected %d records, got %d", n, s.Len())
	}
	res, err := s.Query(context.Background(), "record", n)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	seen := make(map[int]bool, n)
	for _, r := range res {
		if r.Seq < 0 || r.Seq >= n || seen[r.Seq] {
			t.Fatalf("corrupted seq %d", r.Seq)
		}
		seen[r.Seq] = true
	}
}

func TestRecord_MetadataIsolated(t *testing.T) {
	s := NewStore()
	md := map[string]any{"k": "v"}
	rec, err := s.Insert(context.Background(), "text", md)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	md["k"] = "changed"
	res, _ := s.Query(context.Background(), "text", 1)
	if res[0].Metadata["k"] != "v" {
		t.Fatalf("expected copy isolation, got %v", res[0].Metadata["k"])
	}
	if rec.ID == "" {
		t.Fatalf("expected generated record id")
	}
}
