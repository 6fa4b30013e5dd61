package memory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Record ingests one human/agent exchange for a user and fans it out to
// the tiers: both turns enter the short-term buffer and the durable
// turn log, exchanges scoring at or above the importance threshold are
// written to the semantic tier, flow-tagged exchanges are forwarded to
// the episodic tier, and the user's context cache entries are dropped.
// Every K exchanges a consolidation task is enqueued.
//
// Records for one user are serialized: concurrent calls are applied in
// lock-acquisition order and never interleave. The returned ID is the
// human turn's ID. A durable-backend failure returns a StorageError but
// the in-process buffer is updated regardless, so the conversation
// continues with reduced durability.
func (m *Manager) Record(ctx context.Context, userID, humanText, agentText string, meta *TurnMetadata) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("memory: user id is required")
	}

	lk := m.users.get(userID)
	lk.Lock()
	defer lk.Unlock()

	importance := scoreImportance(humanText, agentText, meta, m.cfg.LengthThreshold)
	now := time.Now()

	human := Turn{
		ID:         ulid.Make().String(),
		UserID:     userID,
		Role:       RoleHuman,
		Text:       humanText,
		Timestamp:  now,
		Importance: importance,
		Metadata:   meta,
	}
	agent := Turn{
		ID:         ulid.Make().String(),
		UserID:     userID,
		Role:       RoleAgent,
		Text:       agentText,
		Timestamp:  now,
		Importance: importance,
	}

	// The buffer always advances, even when every backend is down.
	buf := m.buffers.get(userID)
	buf.Append(human)
	needFold := buf.Append(agent)

	if needFold && m.summarizer != nil {
		fctx, cancel := m.timeout(ctx)
		if err := buf.Fold(fctx, m.summarizer); err != nil {
			log.Printf("[RECORDER] Summary fold failed for user=%s, keeping previous summary: %v", userID, err)
		}
		cancel()
	}

	var recordErr error

	sctx, cancel := m.timeout(ctx)
	if err := m.durable.SaveTurn(sctx, human); err != nil {
		m.warnDegraded(err)
		recordErr = &StorageError{Op: "save turn", Err: err}
	} else if err := m.durable.SaveTurn(sctx, agent); err != nil {
		m.warnDegraded(err)
		recordErr = &StorageError{Op: "save turn", Err: err}
	} else if err := m.durable.SaveSummary(sctx, buf.SummaryState(userID)); err != nil {
		log.Printf("[RECORDER] Could not persist summary state for user=%s: %v", userID, err)
	}
	cancel()

	if err := m.gateSemantic(ctx, userID, humanText, agentText, importance, now); err != nil {
		log.Printf("[RECORDER] Long-term write failed for user=%s: %v", userID, err)
		if recordErr == nil {
			recordErr = err
		}
	}

	if meta != nil && (meta.Kind == MetaKindFlow || meta.Kind == MetaKindIntake) {
		if err := m.forwardEpisode(ctx, userID, humanText, now, meta); err != nil {
			log.Printf("[RECORDER] Episodic write failed for user=%s: %v", userID, err)
			if recordErr == nil {
				recordErr = err
			}
		}
	}

	// A context built before this exchange must never be served after
	// it. The generation bump comes first so a build that already read
	// the tiers refuses to cache its now-stale result.
	m.bumpCacheGeneration(userID)
	m.cache.invalidateUser(userID)

	if m.bumpTurnCount(userID) {
		m.worker.request(userID)
	}

	return human.ID, recordErr
}

// gateSemantic writes the combined exchange to the semantic tier when
// its importance clears the threshold. The threshold is inclusive.
func (m *Manager) gateSemantic(ctx context.Context, userID, humanText, agentText string, importance float64, ts time.Time) error {
	if importance < m.cfg.ImportanceThreshold {
		return nil
	}
	return m.putSemantic(ctx, SemanticRecord{
		ID:         uuid.New().String(),
		UserID:     userID,
		Text:       fmt.Sprintf("Human: %s\nAgent: %s", humanText, agentText),
		Importance: importance,
		Timestamp:  ts,
		Namespace:  NamespaceMemories,
	})
}

// forwardEpisode converts flow or intake metadata into an episodic
// record holding the user's literal words.
func (m *Manager) forwardEpisode(ctx context.Context, userID, humanText string, ts time.Time, meta *TurnMetadata) error {
	rec := EpisodicRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		RawText:   humanText,
		CreatedAt: ts,
	}

	switch meta.Kind {
	case MetaKindFlow:
		if meta.Flow == nil {
			return fmt.Errorf("memory: flow metadata without flow payload")
		}
		rec.Theme = meta.Flow.Theme
		if rec.Theme == "" {
			rec.Theme = meta.Flow.FlowType
		}
	case MetaKindIntake:
		if meta.Intake == nil {
			return fmt.Errorf("memory: intake metadata without intake payload")
		}
		rec.Theme = meta.Intake.Theme
		rec.EmotionTags = meta.Intake.Emotions
		rec.VisualMetaphors = meta.Intake.Metaphors
	}

	// Retrieval is keyed by theme; a themeless record would be
	// unreachable through Episodes(userID, theme).
	if rec.Theme == "" {
		return fmt.Errorf("memory: episode requires a theme")
	}

	sctx, cancel := m.timeout(ctx)
	defer cancel()
	if _, err := m.durable.AddEpisode(sctx, rec); err != nil {
		return &StorageError{Op: "add episode", Err: err}
	}
	return nil
}
