package fallback

import (
	"context"
	"testing"
	"time"

	"github.com/nowwclub/companion-memory/memory"
)

func put(t *testing.T, s *Store, id, userID string, emb []float32, ts time.Time) {
	t.Helper()
	err := s.Put(context.Background(), memory.SemanticRecord{
		ID: id, UserID: userID, Text: "record " + id, Embedding: emb, Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("put %s: %v", id, err)
	}
}

func TestSearch_RanksByCosineSimilarity(t *testing.T) {
	s := New()
	now := time.Now()

	// Query along the x axis; similarity decreases with angle.
	put(t, s, "exact", "u1", []float32{1, 0, 0}, now)
	put(t, s, "close", "u1", []float32{1, 0.5, 0}, now)
	put(t, s, "far", "u1", []float32{0, 1, 0}, now)

	got, err := s.Search(context.Background(), "u1", []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	want := []string{"exact", "close", "far"}
	for i, w := range want {
		if got[i].ID != w {
			t.Errorf("result %d = %s, want %s", i, got[i].ID, w)
		}
	}
}

func TestSearch_BreaksTiesByRecency(t *testing.T) {
	s := New()
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	put(t, s, "older", "u1", []float32{1, 0, 0}, older)
	put(t, s, "newer", "u1", []float32{1, 0, 0}, newer)

	got, err := s.Search(context.Background(), "u1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got[0].ID != "newer" || got[1].ID != "older" {
		t.Errorf("expected recency tiebreak, got %s then %s", got[0].ID, got[1].ID)
	}
}

func TestSearch_ScopedToUser(t *testing.T) {
	s := New()
	now := time.Now()

	put(t, s, "mine", "u1", []float32{1, 0, 0}, now)
	put(t, s, "theirs", "u2", []float32{1, 0, 0}, now)

	got, err := s.Search(context.Background(), "u1", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "mine" {
		t.Errorf("expected only u1's record, got %v", got)
	}
}

func TestSearch_ClampsK(t *testing.T) {
	s := New()
	put(t, s, "only", "u1", []float32{1, 0, 0}, time.Now())

	got, err := s.Search(context.Background(), "u1", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 result, got %d", len(got))
	}

	// An unknown user yields no results, not an error.
	got, err = s.Search(context.Background(), "nobody", []float32{1, 0, 0}, 10)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result for unknown user, got %v, %v", got, err)
	}
}

func TestDeleteUser(t *testing.T) {
	s := New()
	put(t, s, "a", "u1", []float32{1, 0, 0}, time.Now())
	put(t, s, "b", "u2", []float32{1, 0, 0}, time.Now())

	if err := s.DeleteUser(context.Background(), "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, _ := s.Search(context.Background(), "u1", []float32{1, 0, 0}, 10)
	if len(got) != 0 {
		t.Errorf("expected u1 records gone, got %v", got)
	}
	got, _ = s.Search(context.Background(), "u2", []float32{1, 0, 0}, 10)
	if len(got) != 1 {
		t.Errorf("expected u2 untouched, got %v", got)
	}
}
