// Package chromem implements the long-term semantic store on
// chromem-go, a pure Go embedded vector database. With a persistence
// directory it is the durable backend variant; without one it keeps
// everything in process memory.
package chromem

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/nowwclub/companion-memory/memory"
)

// Store keeps one chromem collection per user so similarity queries can
// never cross a user boundary.
type Store struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an in-process store.
func New() (*Store, error) {
	return &Store{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// NewPersistent creates a store persisted under dir, reloading any
// collections written by a previous process.
func NewPersistent(dir string) (*Store, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open persistent vector db: %w", err)
	}
	return &Store{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (s *Store) collection(userID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[userID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[userID]; ok {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection("user_"+userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("collection for user %s: %w", userID, err)
	}
	s.collections[userID] = col
	return col, nil
}

// Put stores a record with its precomputed embedding.
func (s *Store) Put(ctx context.Context, rec memory.SemanticRecord) error {
	if rec.UserID == "" {
		return fmt.Errorf("record without user id")
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("record %s has no embedding", rec.ID)
	}

	col, err := s.collection(rec.UserID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Embedding,
		Metadata: map[string]string{
			"user_id":    rec.UserID,
			"namespace":  rec.Namespace,
			"importance": strconv.FormatFloat(rec.Importance, 'f', -1, 64),
			"timestamp":  rec.Timestamp.Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	log.Printf("[CHROMEM] Stored record id=%s user=%s ns=%s", rec.ID, rec.UserID, rec.Namespace)
	return nil
}

// Search returns the k records nearest to the embedding, ranked by
// cosine similarity with ties broken by recency.
func (s *Store) Search(ctx context.Context, userID string, embedding []float32, k int) ([]memory.SemanticRecord, error) {
	col, err := s.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	if n := col.Count(); n < k {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, k, map[string]string{"user_id": userID}, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	records := make([]memory.SemanticRecord, 0, len(results))
	sims := make(map[string]float32, len(results))
	for _, res := range results {
		rec := recordFromResult(userID, res)
		sims[rec.ID] = res.Similarity
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if sims[records[i].ID] != sims[records[j].ID] {
			return sims[records[i].ID] > sims[records[j].ID]
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// DeleteUser drops the user's entire collection.
func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection("user_" + userID); err != nil {
		return fmt.Errorf("delete collection for user %s: %w", userID, err)
	}
	delete(s.collections, userID)
	log.Printf("[CHROMEM] Deleted collection for user=%s", userID)
	return nil
}

// Close releases nothing for chromem; persistence is written on every
// mutation.
func (s *Store) Close() error { return nil }

func recordFromResult(userID string, res chromem.Result) memory.SemanticRecord {
	importance, _ := strconv.ParseFloat(res.Metadata["importance"], 64)
	ts, _ := time.Parse(time.RFC3339Nano, res.Metadata["timestamp"])
	return memory.SemanticRecord{
		ID:         res.ID,
		UserID:     userID,
		Text:       res.Content,
		Embedding:  res.Embedding,
		Importance: importance,
		Timestamp:  ts,
		Namespace:  res.Metadata["namespace"],
	}
}
