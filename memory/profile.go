package memory

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// Consolidate derives traits, preferences and goals from the user's
// recent turns and merges them into the durable profile. The merge is
// an idempotent set/map union over normalized text: re-running it with
// no new turns yields an identical profile. Each successful run writes
// an immutable snapshot for trend queries.
//
// Concurrent consolidations for one user are serialized; background
// cycles for the same user collapse into one pending task.
func (m *Manager) Consolidate(ctx context.Context, userID string) (*Profile, error) {
	lk := m.worker.userLock(userID)
	lk.Lock()
	defer lk.Unlock()

	sctx, cancel := m.timeout(ctx)
	turns, err := m.durable.RecentTurns(sctx, userID, derivationWindow)
	cancel()
	if err != nil {
		return nil, &ConsolidationError{UserID: userID, Err: err}
	}

	sctx, cancel = m.timeout(ctx)
	profile, err := m.durable.Profile(sctx, userID)
	cancel()
	if err != nil {
		return nil, &ConsolidationError{UserID: userID, Err: err}
	}
	if profile == nil {
		profile = &Profile{UserID: userID}
	}
	if profile.Traits == nil {
		profile.Traits = make(map[string]string)
	}
	if profile.Preferences == nil {
		profile.Preferences = make(map[string]string)
	}

	traits, prefs, goals := deriveObservations(turns)
	for k, v := range traits {
		profile.Traits[k] = v
	}
	for k, v := range prefs {
		profile.Preferences[k] = v
	}
	for _, g := range goals {
		profile.Goals = addGoal(profile.Goals, g)
	}
	profile.LastConsolidated = time.Now()

	sctx, cancel = m.timeout(ctx)
	defer cancel()
	if err := m.durable.SaveProfile(sctx, profile); err != nil {
		return nil, &ConsolidationError{UserID: userID, Err: err}
	}
	if err := m.durable.SaveSnapshot(sctx, profile); err != nil {
		log.Printf("[PROFILE] Snapshot write failed for user=%s: %v", userID, err)
	}
	return profile, nil
}

// Snapshots returns up to limit immutable profile snapshots, newest
// first.
func (m *Manager) Snapshots(ctx context.Context, userID string, limit int) ([]Profile, error) {
	sctx, cancel := m.timeout(ctx)
	defer cancel()
	snaps, err := m.durable.Snapshots(sctx, userID, limit)
	if err != nil {
		return nil, &RetrievalError{Op: "profile snapshots", Err: err}
	}
	return snaps, nil
}

// derivationWindow is how many recent turns a consolidation examines.
const derivationWindow = 50

// preferenceMarkers map statement prefixes to the sentiment recorded
// for whatever follows them.
var preferenceMarkers = []struct {
	marker    string
	sentiment string
}{
	{"i really like ", "likes"},
	{"i like ", "likes"},
	{"i love ", "loves"},
	{"i enjoy ", "enjoys"},
	{"i prefer ", "prefers"},
	{"i dislike ", "dislikes"},
	{"i hate ", "dislikes"},
}

var goalMarkers = []string{
	"my goal is to ",
	"my goal is ",
	"i want to ",
	"i plan to ",
	"i am trying to ",
	"i'm trying to ",
}

// traitWords are self-descriptions worth carrying in the profile.
var traitWords = []string{
	"optimistic", "creative", "organized", "curious", "anxious",
	"ambitious", "introverted", "extroverted", "disciplined",
}

// deriveObservations extracts profile facts from human turns with
// deterministic text matching, so consolidation is repeatable.
func deriveObservations(turns []Turn) (traits, prefs map[string]string, goals []string) {
	traits = make(map[string]string)
	prefs = make(map[string]string)

	for _, t := range turns {
		if t.Role != RoleHuman {
			continue
		}
		for _, sentence := range splitSentences(t.Text) {
			lower := strings.ToLower(strings.TrimSpace(sentence))
			if lower == "" {
				continue
			}

			for _, pm := range preferenceMarkers {
				if idx := strings.Index(lower, pm.marker); idx >= 0 {
					if subject := normalizeText(lower[idx+len(pm.marker):]); subject != "" {
						prefs[subject] = pm.sentiment
					}
					break
				}
			}

			for _, gm := range goalMarkers {
				if idx := strings.Index(lower, gm); idx >= 0 {
					if goal := normalizeText(lower[idx+len(gm):]); goal != "" {
						goals = append(goals, goal)
					}
					break
				}
			}

			for _, w := range traitWords {
				if strings.Contains(lower, w) {
					traits[w] = "observed"
				}
			}
		}
	}
	return traits, prefs, goals
}

// addGoal appends a goal unless an existing one matches under text
// normalization. Duplicate derived goals never accumulate.
func addGoal(goals []string, goal string) []string {
	norm := normalizeText(goal)
	if norm == "" {
		return goals
	}
	for _, g := range goals {
		if normalizeText(g) == norm {
			return goals
		}
	}
	return append(goals, norm)
}

// normalizeText lowercases, collapses whitespace and strips trailing
// punctuation so textual duplicates compare equal.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".!?,;: ")
	const maxWords = 8
	words := strings.Fields(s)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}

func splitSentences(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
}

// consolidateWorker runs consolidation cycles off the conversational
// path. Requests for a user already pending are collapsed; a failed
// cycle is logged and the user is picked up again on the next trigger.
type consolidateWorker struct {
	m *Manager

	mu      sync.Mutex
	pending map[string]struct{}
	locks   *userLocks

	queue chan string
	done  chan struct{}
	wg    sync.WaitGroup
}

func newConsolidateWorker(m *Manager) *consolidateWorker {
	return &consolidateWorker{
		m:       m,
		pending: make(map[string]struct{}),
		locks:   newUserLocks(),
		queue:   make(chan string, 64),
		done:    make(chan struct{}),
	}
}

func (w *consolidateWorker) start() {
	w.wg.Add(1)
	go w.run()
}

func (w *consolidateWorker) stop() {
	close(w.done)
	w.wg.Wait()
}

func (w *consolidateWorker) userLock(userID string) *sync.Mutex {
	return w.locks.get(userID)
}

// request enqueues a consolidation cycle unless one is already pending
// for the user.
func (w *consolidateWorker) request(userID string) {
	w.mu.Lock()
	if _, ok := w.pending[userID]; ok {
		w.mu.Unlock()
		return
	}
	w.pending[userID] = struct{}{}
	w.mu.Unlock()

	select {
	case w.queue <- userID:
	default:
		// Queue full; drop and let the next trigger retry.
		w.mu.Lock()
		delete(w.pending, userID)
		w.mu.Unlock()
		log.Printf("[PROFILE] Consolidation queue full, deferring user=%s", userID)
	}
}

func (w *consolidateWorker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case userID := <-w.queue:
			ctx, cancel := context.WithTimeout(context.Background(), w.m.cfg.CallTimeout*3)
			_, err := w.m.Consolidate(ctx, userID)
			cancel()

			w.mu.Lock()
			delete(w.pending, userID)
			w.mu.Unlock()

			if err != nil {
				log.Printf("[PROFILE] Consolidation failed for user=%s, will retry next cycle: %v", userID, err)
			}
		}
	}
}
