package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ShortTermBuffer holds the last W verbatim turns for one user plus a
// rolling summary of everything older. Appends never block on
// summarization: turns that age out wait in a pending batch until a
// fold succeeds, and a failed fold keeps the previous summary.
type ShortTermBuffer struct {
	mu      sync.Mutex
	window  int
	turns   []Turn
	pending []Turn
	summary string
	covered int
	updated time.Time
}

// NewShortTermBuffer creates a buffer holding window verbatim turns.
func NewShortTermBuffer(window int) *ShortTermBuffer {
	if window <= 0 {
		window = DefaultConfig.Window
	}
	return &ShortTermBuffer{window: window}
}

// Append adds a turn, evicting the oldest verbatim turns into the
// pending fold batch when the window overflows. It reports whether
// anything is waiting to be folded.
func (b *ShortTermBuffer) Append(turn Turn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.turns = append(b.turns, turn)
	if over := len(b.turns) - b.window; over > 0 {
		b.pending = append(b.pending, b.turns[:over]...)
		b.turns = append([]Turn(nil), b.turns[over:]...)
	}
	return len(b.pending) > 0
}

// Fold summarizes the pending batch into the rolling summary. The
// summarizer runs outside the buffer lock; on failure the previous
// summary and the pending batch are both kept for the next attempt.
func (b *ShortTermBuffer) Fold(ctx context.Context, s Summarizer) error {
	b.mu.Lock()
	prior := b.summary
	batch := append([]Turn(nil), b.pending...)
	b.mu.Unlock()

	if len(batch) == 0 || s == nil {
		return nil
	}

	folded, err := s.Summarize(ctx, prior, batch)
	if err != nil {
		return fmt.Errorf("fold summary: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.summary = folded
	b.covered += len(batch)
	b.pending = b.pending[len(batch):]
	b.updated = time.Now()
	return nil
}

// Recent returns the last n verbatim turns in arrival order.
func (b *ShortTermBuffer) Recent(n int) []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.turns) {
		n = len(b.turns)
	}
	out := make([]Turn, n)
	copy(out, b.turns[len(b.turns)-n:])
	return out
}

// Len returns the number of verbatim turns currently held.
func (b *ShortTermBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns)
}

// SummaryState returns a snapshot of the rolling summary. The covered
// count only advances when a fold succeeds, so it never decreases.
func (b *ShortTermBuffer) SummaryState(userID string) SummaryState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return SummaryState{
		UserID:           userID,
		RollingSummary:   b.summary,
		CoveredTurnCount: b.covered,
		LastUpdated:      b.updated,
	}
}

// Restore repopulates the buffer from durable state after a restart.
func (b *ShortTermBuffer) Restore(state SummaryState, turns []Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.summary = state.RollingSummary
	if state.CoveredTurnCount > b.covered {
		b.covered = state.CoveredTurnCount
	}
	b.updated = state.LastUpdated
	if len(turns) > b.window {
		turns = turns[len(turns)-b.window:]
	}
	b.turns = append([]Turn(nil), turns...)
	b.pending = nil
}

// bufferSet is the per-user buffer arena. Each user's buffer guards its
// own state; the set's lock only protects the map itself.
type bufferSet struct {
	mu      sync.RWMutex
	window  int
	buffers map[string]*ShortTermBuffer
}

func newBufferSet(window int) *bufferSet {
	return &bufferSet{
		window:  window,
		buffers: make(map[string]*ShortTermBuffer),
	}
}

func (s *bufferSet) get(userID string) *ShortTermBuffer {
	s.mu.RLock()
	b, ok := s.buffers[userID]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buffers[userID]; ok {
		return b
	}
	b = NewShortTermBuffer(s.window)
	s.buffers[userID] = b
	return b
}

func (s *bufferSet) drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, userID)
}
