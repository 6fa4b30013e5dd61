package chromem

import (
	"context"
	"testing"
	"time"

	"github.com/nowwclub/companion-memory/memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New()
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func put(t *testing.T, s *Store, id, userID string, emb []float32, ts time.Time) {
	t.Helper()
	err := s.Put(context.Background(), memory.SemanticRecord{
		ID:         id,
		UserID:     userID,
		Text:       "record " + id,
		Embedding:  emb,
		Importance: 0.6,
		Timestamp:  ts,
		Namespace:  memory.NamespaceMemories,
	})
	if err != nil {
		t.Fatalf("put %s: %v", id, err)
	}
}

func TestPutAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	put(t, s, "exact", "u1", []float32{1, 0, 0}, now)
	put(t, s, "far", "u1", []float32{0, 1, 0}, now)

	got, err := s.Search(ctx, "u1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != "exact" {
		t.Errorf("expected nearest record first, got %s", got[0].ID)
	}
	if got[0].Text != "record exact" {
		t.Errorf("expected content round-tripped, got %q", got[0].Text)
	}
	if got[0].Importance != 0.6 {
		t.Errorf("expected importance round-tripped, got %v", got[0].Importance)
	}
	if got[0].Namespace != memory.NamespaceMemories {
		t.Errorf("expected namespace round-tripped, got %q", got[0].Namespace)
	}
}

func TestSearch_ClampsKToCollectionSize(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	put(t, s, "only", "u1", []float32{1, 0, 0}, time.Now())

	got, err := s.Search(ctx, "u1", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 result, got %d", len(got))
	}

	// An empty collection answers with no results rather than an error.
	got, err = s.Search(ctx, "empty-user", []float32{1, 0, 0}, 4)
	if err != nil {
		t.Fatalf("search empty: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestSearch_UserIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	put(t, s, "mine", "u1", []float32{1, 0, 0}, now)
	put(t, s, "theirs", "u2", []float32{1, 0, 0}, now)

	got, err := s.Search(ctx, "u1", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "mine" {
		t.Errorf("expected only u1's record, got %v", got)
	}
	for _, r := range got {
		if r.UserID != "u1" {
			t.Errorf("record %s leaked from user %s", r.ID, r.UserID)
		}
	}
}

func TestPut_RequiresUserAndEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Put(ctx, memory.SemanticRecord{ID: "x", Text: "no user"})
	if err == nil {
		t.Error("expected error for missing user id")
	}
	err = s.Put(ctx, memory.SemanticRecord{ID: "x", UserID: "u1", Text: "no embedding"})
	if err == nil {
		t.Error("expected error for missing embedding")
	}
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	put(t, s, "a", "u1", []float32{1, 0, 0}, now)
	put(t, s, "b", "u2", []float32{1, 0, 0}, now)

	if err := s.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.Search(ctx, "u1", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("search after delete: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected u1 collection gone, got %v", got)
	}
	got, _ = s.Search(ctx, "u2", []float32{1, 0, 0}, 10)
	if len(got) != 1 {
		t.Errorf("expected u2 untouched, got %v", got)
	}
}

func TestNewPersistent_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewPersistent(dir)
	if err != nil {
		t.Fatalf("create persistent store: %v", err)
	}
	put(t, s, "durable", "u1", []float32{1, 0, 0}, time.Now())
	s.Close()

	reopened, err := NewPersistent(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Search(ctx, "u1", []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "durable" {
		t.Errorf("expected record to survive reopen, got %v", got)
	}
}
