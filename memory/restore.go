package memory

import (
	"context"
	"fmt"
	"log"
)

// restoreHighlights caps how many episodic records a restore surfaces.
const restoreHighlights = 5

// Restore rebuilds a user's effective conversational state from the
// durable tiers after a reconnect or restart. The short-term buffer is
// process memory and assumed empty; it is repopulated from the turn
// log and the persisted summary state. Individual tier failures yield
// a partial state; an error is returned only when every tier failed.
func (m *Manager) Restore(ctx context.Context, userID string) (*SessionState, error) {
	if userID == "" {
		return nil, fmt.Errorf("memory: user id is required")
	}

	lk := m.users.get(userID)
	lk.Lock()
	defer lk.Unlock()

	state := &SessionState{}
	failures := 0

	sctx, cancel := m.timeout(ctx)
	turns, err := m.durable.RecentTurns(sctx, userID, m.cfg.Window)
	cancel()
	if err != nil {
		failures++
		log.Printf("[MEMORY] Restore: turn log unavailable for user=%s: %v", userID, err)
	} else {
		state.RecentTurns = turns
	}

	sctx, cancel = m.timeout(ctx)
	summary, err := m.durable.Summary(sctx, userID)
	cancel()
	if err != nil {
		failures++
		log.Printf("[MEMORY] Restore: summary state unavailable for user=%s: %v", userID, err)
	} else if summary != nil {
		state.Summary = *summary
	}
	state.Summary.UserID = userID

	sctx, cancel = m.timeout(ctx)
	episodes, err := m.durable.Episodes(sctx, userID, "")
	cancel()
	if err != nil {
		failures++
		log.Printf("[MEMORY] Restore: episodic tier unavailable for user=%s: %v", userID, err)
	} else {
		if len(episodes) > restoreHighlights {
			episodes = episodes[len(episodes)-restoreHighlights:]
		}
		state.Highlights = episodes
	}

	sctx, cancel = m.timeout(ctx)
	profile, err := m.durable.Profile(sctx, userID)
	cancel()
	if err != nil {
		failures++
		log.Printf("[MEMORY] Restore: profile unavailable for user=%s: %v", userID, err)
	} else {
		state.Profile = profile
	}

	if failures == 4 {
		return nil, &RetrievalError{Op: "restore", Err: fmt.Errorf("all durable tiers unavailable for user %s", userID)}
	}

	// Repopulate process memory so the next turns continue seamlessly.
	m.buffers.get(userID).Restore(state.Summary, state.RecentTurns)
	m.cache.invalidateUser(userID)

	return state, nil
}
