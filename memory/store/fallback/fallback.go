// Package fallback implements the semantic store as a plain in-process
// map with a brute-force cosine scan. It exists so the manager keeps
// working when no vector database is configured; everything is lost on
// restart.
package fallback

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/nowwclub/companion-memory/memory"
)

type Store struct {
	mu      sync.RWMutex
	records map[string][]memory.SemanticRecord
}

func New() *Store {
	return &Store{records: make(map[string][]memory.SemanticRecord)}
}

func (s *Store) Put(_ context.Context, rec memory.SemanticRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UserID] = append(s.records[rec.UserID], rec)
	return nil
}

func (s *Store) Search(_ context.Context, userID string, embedding []float32, k int) ([]memory.SemanticRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool := s.records[userID]
	if len(pool) == 0 || k <= 0 {
		return nil, nil
	}

	type scored struct {
		rec memory.SemanticRecord
		sim float64
	}
	candidates := make([]scored, 0, len(pool))
	for _, rec := range pool {
		candidates = append(candidates, scored{rec: rec, sim: cosineSimilarity(embedding, rec.Embedding)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].rec.Timestamp.After(candidates[j].rec.Timestamp)
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]memory.SemanticRecord, 0, k)
	for _, c := range candidates[:k] {
		out = append(out, c.rec)
	}
	return out, nil
}

func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

func (s *Store) Close() error { return nil }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
