package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nowwclub/companion-memory/memory"
	"github.com/nowwclub/companion-memory/memory/embedder/mock"
)

// fakeSemantic is an in-memory semantic store instrumented with call
// counters and failure switches.
type fakeSemantic struct {
	mu          sync.Mutex
	records     []memory.SemanticRecord
	putCalls    int
	searchCalls int
	failPut     bool
	failSearch  bool
}

func (f *fakeSemantic) Put(_ context.Context, rec memory.SemanticRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.failPut {
		return errors.New("semantic store down")
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeSemantic) Search(_ context.Context, userID string, _ []float32, k int) ([]memory.SemanticRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.failSearch {
		return nil, errors.New("semantic store down")
	}
	var out []memory.SemanticRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (f *fakeSemantic) DeleteUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.records[:0]
	for _, r := range f.records {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	f.records = kept
	return nil
}

func (f *fakeSemantic) Close() error { return nil }

func (f *fakeSemantic) recordsFor(userID string) []memory.SemanticRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []memory.SemanticRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// fakeDurable is an in-memory durable store instrumented the same way.
type fakeDurable struct {
	mu        sync.Mutex
	turns     []memory.Turn
	summaries map[string]memory.SummaryState
	episodes  []memory.EpisodicRecord
	seq       map[string]int64
	profiles  map[string]*memory.Profile
	snapshots map[string][]memory.Profile

	profileCalls int
	failSaveTurn bool
	failRecent   bool
	failSummary  bool
	failEpisodes bool
	failProfile  bool
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		summaries: make(map[string]memory.SummaryState),
		seq:       make(map[string]int64),
		profiles:  make(map[string]*memory.Profile),
		snapshots: make(map[string][]memory.Profile),
	}
}

func (f *fakeDurable) SaveTurn(_ context.Context, turn memory.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaveTurn {
		return errors.New("turn log down")
	}
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakeDurable) RecentTurns(_ context.Context, userID string, n int) ([]memory.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRecent {
		return nil, errors.New("turn log down")
	}
	var out []memory.Turn
	for _, t := range f.turns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (f *fakeDurable) SaveSummary(_ context.Context, state memory.SummaryState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries[state.UserID] = state
	return nil
}

func (f *fakeDurable) Summary(_ context.Context, userID string) (*memory.SummaryState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSummary {
		return nil, errors.New("summary state down")
	}
	state, ok := f.summaries[userID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (f *fakeDurable) AddEpisode(_ context.Context, rec memory.EpisodicRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rec.UserID + "|" + rec.Theme
	f.seq[key]++
	rec.SequenceNo = f.seq[key]
	f.episodes = append(f.episodes, rec)
	return rec.SequenceNo, nil
}

func (f *fakeDurable) Episodes(_ context.Context, userID, theme string) ([]memory.EpisodicRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEpisodes {
		return nil, errors.New("episodic tier down")
	}
	var out []memory.EpisodicRecord
	for _, e := range f.episodes {
		if e.UserID == userID && (theme == "" || e.Theme == theme) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeDurable) CountEpisodes(_ context.Context, userID, theme string) (int, error) {
	eps, err := f.Episodes(context.Background(), userID, theme)
	return len(eps), err
}

func (f *fakeDurable) SaveProfile(_ context.Context, p *memory.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.profiles[p.UserID] = &cp
	return nil
}

func (f *fakeDurable) Profile(_ context.Context, userID string) (*memory.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls++
	if f.failProfile {
		return nil, errors.New("profile tier down")
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeDurable) SaveSnapshot(_ context.Context, p *memory.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[p.UserID] = append(f.snapshots[p.UserID], *p)
	return nil
}

func (f *fakeDurable) Snapshots(_ context.Context, userID string, limit int) ([]memory.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snaps := f.snapshots[userID]
	if len(snaps) > limit {
		snaps = snaps[len(snaps)-limit:]
	}
	out := make([]memory.Profile, len(snaps))
	for i := range snaps {
		out[i] = snaps[len(snaps)-1-i]
	}
	return out, nil
}

func (f *fakeDurable) ClearUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.turns[:0]
	for _, t := range f.turns {
		if t.UserID != userID {
			kept = append(kept, t)
		}
	}
	f.turns = kept
	delete(f.summaries, userID)
	delete(f.profiles, userID)
	delete(f.snapshots, userID)
	var eps []memory.EpisodicRecord
	for _, e := range f.episodes {
		if e.UserID != userID {
			eps = append(eps, e)
		}
	}
	f.episodes = eps
	return nil
}

func (f *fakeDurable) Close() error { return nil }

func (f *fakeDurable) turnsFor(userID string) []memory.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []memory.Turn
	for _, t := range f.turns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeDurable) profileFor(userID string) *memory.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[userID]
}

func newTestManager(t *testing.T, semantic *fakeSemantic, durable *fakeDurable, cfg *memory.Config) *memory.Manager {
	t.Helper()
	mgr, err := memory.NewManager(semantic, durable, mock.New(), &stubSummarizer{}, cfg)
	if err != nil {
		t.Fatalf("create manager: %v", err)
	}
	t.Cleanup(mgr.Close)
	return mgr
}

func TestManager_RecordStoresBothTurns(t *testing.T) {
	ctx := context.Background()
	semantic := &fakeSemantic{}
	durable := newFakeDurable()
	mgr := newTestManager(t, semantic, durable, nil)

	id, err := mgr.Record(ctx, "u1", "hello there", "hi, how are you", nil)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id == "" {
		t.Fatal("expected the human turn id")
	}

	turns := durable.turnsFor("u1")
	if len(turns) != 2 {
		t.Fatalf("expected 2 durable turns, got %d", len(turns))
	}
	if turns[0].Role != memory.RoleHuman || turns[1].Role != memory.RoleAgent {
		t.Errorf("expected human then agent, got %v then %v", turns[0].Role, turns[1].Role)
	}
	if turns[0].ID != id {
		t.Errorf("returned id %q does not match stored human turn %q", id, turns[0].ID)
	}
	if mgr.Buffer("u1").Len() != 2 {
		t.Errorf("expected 2 buffered turns, got %d", mgr.Buffer("u1").Len())
	}
}

func TestManager_ImportanceGate(t *testing.T) {
	ctx := context.Background()
	semantic := &fakeSemantic{}
	durable := newFakeDurable()
	mgr := newTestManager(t, semantic, durable, &memory.Config{ImportanceThreshold: 0.7})

	// Base score 0.5: below the threshold, no long-term write.
	if _, err := mgr.Record(ctx, "u1", "hi", "hello", nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if n := len(semantic.recordsFor("u1")); n != 0 {
		t.Fatalf("expected no semantic records below threshold, got %d", n)
	}

	// Two keywords score exactly 0.7: the threshold is inclusive.
	if _, err := mgr.Record(ctx, "u1", "remember my goal", "noted", nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	records := semantic.recordsFor("u1")
	if len(records) != 1 {
		t.Fatalf("expected 1 semantic record at threshold, got %d", len(records))
	}
	if records[0].Importance != 0.7 {
		t.Errorf("expected importance 0.7, got %v", records[0].Importance)
	}
	if records[0].Namespace != memory.NamespaceMemories {
		t.Errorf("expected memories namespace, got %q", records[0].Namespace)
	}
}

func TestManager_RecordForwardsFlowEpisode(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	mgr := newTestManager(t, &fakeSemantic{}, durable, nil)

	meta := &memory.TurnMetadata{
		Kind: memory.MetaKindFlow,
		Flow: &memory.FlowMetadata{FlowType: "habit", Step: 2},
	}
	if _, err := mgr.Record(ctx, "u1", "I want to journal every evening", "great habit", meta); err != nil {
		t.Fatalf("record: %v", err)
	}

	eps, err := mgr.Episodes(ctx, "u1", "habit")
	if err != nil {
		t.Fatalf("episodes: %v", err)
	}
	if len(eps) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(eps))
	}
	if eps[0].Theme != "habit" {
		t.Errorf("expected flow type as theme fallback, got %q", eps[0].Theme)
	}
	if eps[0].RawText != "I want to journal every evening" {
		t.Errorf("episode must hold the user's literal words, got %q", eps[0].RawText)
	}
	if eps[0].SequenceNo != 1 {
		t.Errorf("expected sequence 1, got %d", eps[0].SequenceNo)
	}
}

func TestManager_RecordForwardsIntakeEpisode(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	mgr := newTestManager(t, &fakeSemantic{}, durable, nil)

	meta := &memory.TurnMetadata{
		Kind: memory.MetaKindIntake,
		Intake: &memory.IntakeMetadata{
			Question:  3,
			Theme:     "vision",
			Emotions:  []string{"hopeful", "calm"},
			Metaphors: []string{"open road"},
		},
	}
	if _, err := mgr.Record(ctx, "u1", "I see myself living by the sea", "that sounds peaceful", meta); err != nil {
		t.Fatalf("record: %v", err)
	}

	eps, err := mgr.Episodes(ctx, "u1", "vision")
	if err != nil {
		t.Fatalf("episodes: %v", err)
	}
	if len(eps) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(eps))
	}
	if len(eps[0].EmotionTags) != 2 || eps[0].EmotionTags[0] != "hopeful" {
		t.Errorf("expected emotion tags carried, got %v", eps[0].EmotionTags)
	}
	if len(eps[0].VisualMetaphors) != 1 || eps[0].VisualMetaphors[0] != "open road" {
		t.Errorf("expected metaphors carried, got %v", eps[0].VisualMetaphors)
	}
}

func TestManager_RecordRejectsThemelessEpisode(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	mgr := newTestManager(t, &fakeSemantic{}, durable, nil)

	// No theme and no flow type to fall back on: the record would be
	// unreachable through theme lookup.
	meta := &memory.TurnMetadata{
		Kind:   memory.MetaKindIntake,
		Intake: &memory.IntakeMetadata{Question: 1, Emotions: []string{"calm"}},
	}
	if _, err := mgr.Record(ctx, "u1", "an answer", "noted", meta); err == nil {
		t.Fatal("expected an error for a themeless episode")
	}

	n, err := mgr.CountEpisodes(ctx, "u1", "")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("themeless episode must not be stored, got %d", n)
	}
}

func TestManager_PlainMetadataSkipsEpisodicTier(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	mgr := newTestManager(t, &fakeSemantic{}, durable, nil)

	meta := &memory.TurnMetadata{Kind: memory.MetaKindPlain, Extra: map[string]string{"channel": "app"}}
	if _, err := mgr.Record(ctx, "u1", "just chatting", "sure", meta); err != nil {
		t.Fatalf("record: %v", err)
	}

	n, err := mgr.CountEpisodes(ctx, "u1", "")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("plain exchange must not create episodes, got %d", n)
	}
}

func TestManager_ConcurrentRecordsDoNotInterleave(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	mgr := newTestManager(t, &fakeSemantic{}, durable, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			human := fmt.Sprintf("question %d", i)
			agent := fmt.Sprintf("answer %d", i)
			if _, err := mgr.Record(ctx, "u1", human, agent, nil); err != nil {
				t.Errorf("record %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	turns := durable.turnsFor("u1")
	if len(turns) != 16 {
		t.Fatalf("expected 16 turns, got %d", len(turns))
	}
	// Exchanges may land in any order, but each human turn must be
	// immediately followed by its own agent reply.
	for i := 0; i < len(turns); i += 2 {
		h, a := turns[i], turns[i+1]
		if h.Role != memory.RoleHuman || a.Role != memory.RoleAgent {
			t.Fatalf("turn pair %d interleaved: %v then %v", i/2, h.Role, a.Role)
		}
		var idx int
		fmt.Sscanf(h.Text, "question %d", &idx)
		if want := fmt.Sprintf("answer %d", idx); a.Text != want {
			t.Errorf("pair %d mismatched: %q answered by %q", i/2, h.Text, a.Text)
		}
	}
}

func TestManager_SaveRecallMemory(t *testing.T) {
	ctx := context.Background()
	semantic := &fakeSemantic{}
	mgr := newTestManager(t, semantic, newFakeDurable(), nil)

	if err := mgr.SaveRecallMemory(ctx, "u1", "my sister's name is Mara"); err != nil {
		t.Fatalf("save recall: %v", err)
	}

	records := semantic.recordsFor("u1")
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Importance != 0.8 {
		t.Errorf("explicit memories carry importance 0.8, got %v", records[0].Importance)
	}
	if records[0].Namespace != memory.NamespaceRecall {
		t.Errorf("expected recall namespace, got %q", records[0].Namespace)
	}
}

func TestManager_SearchScopedToUser(t *testing.T) {
	ctx := context.Background()
	semantic := &fakeSemantic{}
	mgr := newTestManager(t, semantic, newFakeDurable(), nil)

	if err := mgr.SaveRecallMemory(ctx, "u1", "u1 plays the violin"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mgr.SaveRecallMemory(ctx, "u2", "u2 plays the drums"); err != nil {
		t.Fatalf("save: %v", err)
	}

	results, err := mgr.Search(ctx, "u1", "what instrument", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.UserID != "u1" {
			t.Errorf("search leaked record of user %q", r.UserID)
		}
	}
	if len(results) != 1 {
		t.Errorf("expected exactly u1's record, got %d results", len(results))
	}
}

func TestManager_ClearUser(t *testing.T) {
	ctx := context.Background()
	semantic := &fakeSemantic{}
	durable := newFakeDurable()
	mgr := newTestManager(t, semantic, durable, nil)

	if _, err := mgr.Record(ctx, "u1", "remember my goal please", "will do", nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := mgr.Record(ctx, "u2", "remember my plan please", "will do", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := mgr.ClearUser(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if n := len(durable.turnsFor("u1")); n != 0 {
		t.Errorf("expected u1 turn log cleared, got %d turns", n)
	}
	if n := len(semantic.recordsFor("u1")); n != 0 {
		t.Errorf("expected u1 semantic records cleared, got %d", n)
	}
	if mgr.Buffer("u1").Len() != 0 {
		t.Errorf("expected u1 buffer dropped")
	}
	if n := len(durable.turnsFor("u2")); n != 2 {
		t.Errorf("clearing u1 must not touch u2, got %d turns", n)
	}
}

func TestManager_RecordDegradesWhenDurableDown(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	durable.failSaveTurn = true
	mgr := newTestManager(t, &fakeSemantic{}, durable, nil)

	_, err := mgr.Record(ctx, "u1", "hello there friend", "hi", nil)
	if !errors.Is(err, memory.ErrStorage) {
		t.Fatalf("expected a storage error, got %v", err)
	}

	// The conversation continues from the in-process buffer.
	if mgr.Buffer("u1").Len() != 2 {
		t.Errorf("buffer must advance despite the backend failure, got %d", mgr.Buffer("u1").Len())
	}
	out, err := mgr.BuildContext(ctx, "u1", "hi")
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if out == "" {
		t.Error("expected a context from the buffer alone")
	}
}

func TestManager_ConsolidateIdempotent(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	mgr := newTestManager(t, &fakeSemantic{}, durable, nil)

	if _, err := mgr.Record(ctx, "u1", "I really like jazz music", "nice taste", nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := mgr.Record(ctx, "u1", "My goal is to run a marathon", "ambitious", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	first, err := mgr.Consolidate(ctx, "u1")
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	second, err := mgr.Consolidate(ctx, "u1")
	if err != nil {
		t.Fatalf("second consolidate: %v", err)
	}

	if first.Preferences["jazz music"] != "likes" {
		t.Errorf("expected jazz music preference, got %v", first.Preferences)
	}
	if len(second.Goals) != 1 || second.Goals[0] != "run a marathon" {
		t.Errorf("re-running consolidation must not duplicate goals, got %v", second.Goals)
	}
	if len(second.Preferences) != len(first.Preferences) {
		t.Errorf("re-running consolidation changed preferences: %v vs %v", first.Preferences, second.Preferences)
	}

	snaps, err := mgr.Snapshots(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Errorf("expected a snapshot per run, got %d", len(snaps))
	}
}

func TestManager_BackgroundConsolidationEveryK(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	mgr := newTestManager(t, &fakeSemantic{}, durable, &memory.Config{ConsolidateEvery: 2})

	if _, err := mgr.Record(ctx, "u1", "I really like hiking", "great", nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := mgr.Record(ctx, "u1", "I want to hike the coast trail", "lovely plan", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := durable.profileFor("u1"); p != nil && p.Preferences["hiking"] == "likes" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected background consolidation after the second exchange")
}
