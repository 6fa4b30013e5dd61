package memory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager orchestrates the memory tiers for all users of one process.
// State is partitioned by user: each user's timeline is serialized by a
// per-user lock while different users proceed concurrently. The context
// cache is the only cross-user shared structure.
type Manager struct {
	cfg        *Config
	semantic   SemanticStore
	durable    DurableStore
	embedder   Embedder
	summarizer Summarizer

	buffers *bufferSet
	cache   *contextCache
	worker  *consolidateWorker

	users  *userLocks
	counts struct {
		mu sync.Mutex
		m  map[string]int
	}
	gens struct {
		mu sync.Mutex
		m  map[string]uint64
	}
	degradedWarn sync.Once
}

// NewManager wires the tiers together. The semantic store, durable
// store and embedder are required; a nil summarizer disables summary
// folding (the rolling summary stays empty, verbatim turns still
// rotate). Configuration problems are startup failures by design.
func NewManager(semantic SemanticStore, durable DurableStore, embedder Embedder, summarizer Summarizer, cfg *Config) (*Manager, error) {
	if semantic == nil {
		return nil, fmt.Errorf("memory: semantic store is required")
	}
	if durable == nil {
		return nil, fmt.Errorf("memory: durable store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("memory: embedder is required")
	}
	if cfg == nil {
		cfg = DefaultConfig
	}
	cfg = cfg.withDefaults()

	cache, err := newContextCache(cfg.CacheTTL)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:        cfg,
		semantic:   semantic,
		durable:    durable,
		embedder:   embedder,
		summarizer: summarizer,
		buffers:    newBufferSet(cfg.Window),
		cache:      cache,
		users:      newUserLocks(),
	}
	m.counts.m = make(map[string]int)
	m.gens.m = make(map[string]uint64)
	m.worker = newConsolidateWorker(m)
	m.worker.start()
	return m, nil
}

// Close stops the consolidation worker and releases the cache. The
// stores are owned by the caller and closed separately.
func (m *Manager) Close() {
	m.worker.stop()
	m.cache.close()
}

// Buffer exposes the short-term buffer for a user.
func (m *Manager) Buffer(userID string) *ShortTermBuffer {
	return m.buffers.get(userID)
}

// SaveRecallMemory stores text the user explicitly asked to remember.
// Explicit memories are stored with high importance regardless of the
// scoring heuristics.
func (m *Manager) SaveRecallMemory(ctx context.Context, userID, text string) error {
	if userID == "" || text == "" {
		return fmt.Errorf("memory: user id and text are required")
	}
	return m.putSemantic(ctx, SemanticRecord{
		ID:         uuid.New().String(),
		UserID:     userID,
		Text:       text,
		Importance: 0.8,
		Timestamp:  time.Now(),
		Namespace:  NamespaceRecall,
	})
}

// Search returns the k semantic records nearest to the query, ranked
// by cosine similarity with ties broken by recency, scoped to the user.
func (m *Manager) Search(ctx context.Context, userID, query string, k int) ([]SemanticRecord, error) {
	if k <= 0 {
		k = m.cfg.SearchK
	}

	ectx, cancel := m.timeout(ctx)
	embedding, err := m.embedder.Embed(ectx, query)
	cancel()
	if err != nil {
		return nil, &RetrievalError{Op: "embed query", Err: err}
	}

	sctx, cancel := m.timeout(ctx)
	defer cancel()
	records, err := m.semantic.Search(sctx, userID, embedding, k)
	if err != nil {
		return nil, &RetrievalError{Op: "semantic search", Err: err}
	}
	return records, nil
}

// AddEpisode appends a record to the episodic tier. Flow controllers
// call this directly for guided flows; Record forwards flow-tagged
// turns here as well.
func (m *Manager) AddEpisode(ctx context.Context, rec EpisodicRecord) (int64, error) {
	if rec.UserID == "" || rec.Theme == "" {
		return 0, fmt.Errorf("memory: episode user id and theme are required")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	sctx, cancel := m.timeout(ctx)
	defer cancel()
	seq, err := m.durable.AddEpisode(sctx, rec)
	if err != nil {
		return 0, &StorageError{Op: "add episode", Err: err}
	}
	return seq, nil
}

// Episodes returns the user's episodic records in strict sequence
// order. An empty theme returns all themes in creation order.
func (m *Manager) Episodes(ctx context.Context, userID, theme string) ([]EpisodicRecord, error) {
	sctx, cancel := m.timeout(ctx)
	defer cancel()
	eps, err := m.durable.Episodes(sctx, userID, theme)
	if err != nil {
		return nil, &RetrievalError{Op: "episodes", Err: err}
	}
	return eps, nil
}

// CountEpisodes reports how many episodes exist for a theme, letting
// flow controllers decide whether enough data has been collected.
func (m *Manager) CountEpisodes(ctx context.Context, userID, theme string) (int, error) {
	sctx, cancel := m.timeout(ctx)
	defer cancel()
	n, err := m.durable.CountEpisodes(sctx, userID, theme)
	if err != nil {
		return 0, &RetrievalError{Op: "count episodes", Err: err}
	}
	return n, nil
}

// ClearUser drops all in-process and durable state for one user.
func (m *Manager) ClearUser(ctx context.Context, userID string) error {
	lk := m.users.get(userID)
	lk.Lock()
	defer lk.Unlock()

	m.buffers.drop(userID)
	m.bumpCacheGeneration(userID)
	m.cache.invalidateUser(userID)
	m.counts.mu.Lock()
	delete(m.counts.m, userID)
	m.counts.mu.Unlock()

	sctx, cancel := m.timeout(ctx)
	defer cancel()
	if err := m.semantic.DeleteUser(sctx, userID); err != nil {
		return &StorageError{Op: "clear semantic records", Err: err}
	}
	if err := m.durable.ClearUser(sctx, userID); err != nil {
		return &StorageError{Op: "clear user", Err: err}
	}
	return nil
}

// putSemantic embeds and stores one semantic record, mapping failures
// onto the error taxonomy.
func (m *Manager) putSemantic(ctx context.Context, rec SemanticRecord) error {
	ectx, cancel := m.timeout(ctx)
	embedding, err := m.embedder.Embed(ectx, rec.Text)
	cancel()
	if err != nil {
		return &RetrievalError{Op: "embed record", Err: err}
	}
	rec.Embedding = embedding

	sctx, cancel := m.timeout(ctx)
	defer cancel()
	if err := m.semantic.Put(sctx, rec); err != nil {
		m.warnDegraded(err)
		return &StorageError{Op: "semantic put", Err: err}
	}
	return nil
}

// warnDegraded logs the backend-unavailable warning once per process
// lifetime instead of flooding the log on every request.
func (m *Manager) warnDegraded(err error) {
	m.degradedWarn.Do(func() {
		log.Printf("[MEMORY] Backend unavailable, continuing degraded: %v", err)
	})
}

func (m *Manager) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.CallTimeout)
}

// cacheGeneration returns the user's cache generation. Record and
// ClearUser bump it before invalidating; a context build that spans a
// bump must not write its result to the cache.
func (m *Manager) cacheGeneration(userID string) uint64 {
	m.gens.mu.Lock()
	defer m.gens.mu.Unlock()
	return m.gens.m[userID]
}

func (m *Manager) bumpCacheGeneration(userID string) {
	m.gens.mu.Lock()
	defer m.gens.mu.Unlock()
	m.gens.m[userID]++
}

// bumpTurnCount advances the user's exchange counter and reports
// whether a consolidation cycle is due.
func (m *Manager) bumpTurnCount(userID string) bool {
	m.counts.mu.Lock()
	defer m.counts.mu.Unlock()
	m.counts.m[userID]++
	return m.counts.m[userID]%m.cfg.ConsolidateEvery == 0
}

// userLocks is the per-user serialization arena. Each user's timeline
// is guarded by its own mutex; the outer lock only protects the map.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *userLocks) get(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[userID]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[userID] = lk
	}
	return lk
}

// Namespaces of the semantic tier.
const (
	// NamespaceMemories holds importance-gated conversation records.
	NamespaceMemories = "memories"

	// NamespaceRecall holds memories the user explicitly asked to keep.
	NamespaceRecall = "recall"
)
