package memory

import (
	"context"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleHuman Role = "human"
	RoleAgent Role = "agent"
)

// MetaKind tags the known metadata shapes a turn can carry.
type MetaKind string

const (
	// MetaKindPlain marks metadata that carries only the open extension map.
	MetaKindPlain MetaKind = "plain"

	// MetaKindFlow marks a step of a structured multi-step flow
	// (habit setup, goal setting, reminders). Flow turns are forwarded
	// to the episodic tier.
	MetaKindFlow MetaKind = "flow"

	// MetaKindIntake marks an answer inside a guided intake flow,
	// carrying the analysis the flow controller attached to it.
	MetaKindIntake MetaKind = "intake"
)

// FlowMetadata describes one step of a structured flow.
type FlowMetadata struct {
	FlowType string
	Step     int
	Theme    string
}

// IntakeMetadata carries a guided intake answer with its analysis.
type IntakeMetadata struct {
	Question  int
	Theme     string
	Emotions  []string
	Metaphors []string
}

// TurnMetadata is a tagged union of the known metadata kinds plus an
// open extension map for fields the core does not interpret.
type TurnMetadata struct {
	Kind   MetaKind
	Flow   *FlowMetadata
	Intake *IntakeMetadata

	// Important raises the importance score of the exchange.
	Important bool

	// Extra holds caller-defined fields passed through to storage.
	Extra map[string]string
}

// Turn is one message of a human/agent exchange. Turns are immutable
// once written and totally ordered by arrival per user; IDs are ULIDs,
// so lexicographic ID order is arrival order.
type Turn struct {
	ID         string
	UserID     string
	Role       Role
	Text       string
	Timestamp  time.Time
	Importance float64
	Metadata   *TurnMetadata
}

// SummaryState is the rolling summary of turns that have aged out of
// the short-term window. CoveredTurnCount never decreases.
type SummaryState struct {
	UserID           string
	RollingSummary   string
	CoveredTurnCount int
	LastUpdated      time.Time
}

// SemanticRecord is one durable, append-only entry of the long-term
// semantic tier. The embedding is computed once at write time.
type SemanticRecord struct {
	ID         string
	UserID     string
	Text       string
	Embedding  []float32
	Importance float64
	Timestamp  time.Time
	Namespace  string
}

// EpisodicRecord is one chronologically ordered record of a significant
// interaction step, keyed by theme. SequenceNo is strictly increasing
// per (user, theme).
type EpisodicRecord struct {
	ID              string
	UserID          string
	Theme           string
	EmotionTags     []string
	VisualMetaphors []string
	RawText         string
	SequenceNo      int64
	CreatedAt       time.Time
}

// Profile is the single consolidated record per user. It is only ever
// updated by idempotent merge, never replaced wholesale.
type Profile struct {
	UserID           string
	Traits           map[string]string
	Preferences      map[string]string
	Goals            []string
	LastConsolidated time.Time
}

// SessionState is what Restore rebuilds from the durable tiers.
type SessionState struct {
	RecentTurns []Turn
	Summary     SummaryState
	Highlights  []EpisodicRecord
	Profile     *Profile
}

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), openai (production).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Summarizer folds aged-out turns into the rolling summary.
// A failure preserves the prior summary; it never blocks an append.
type Summarizer interface {
	Summarize(ctx context.Context, priorSummary string, turns []Turn) (string, error)
}

// SemanticStore is the long-term vector tier. Search results are ranked
// by cosine similarity, ties broken by recency, and never cross user
// boundaries. Implementations: chromem (durable), fallback (in-process).
type SemanticStore interface {
	Put(ctx context.Context, rec SemanticRecord) error
	Search(ctx context.Context, userID string, embedding []float32, k int) ([]SemanticRecord, error)
	DeleteUser(ctx context.Context, userID string) error
	Close() error
}

// TurnLog is the durable record of every exchange, used for session
// restoration and profile derivation.
type TurnLog interface {
	SaveTurn(ctx context.Context, turn Turn) error
	RecentTurns(ctx context.Context, userID string, n int) ([]Turn, error)
	SaveSummary(ctx context.Context, state SummaryState) error
	Summary(ctx context.Context, userID string) (*SummaryState, error)
}

// EpisodicStore holds flow records in strict per-theme order.
// There is no ranking; retrieval is chronological by sequence number.
type EpisodicStore interface {
	AddEpisode(ctx context.Context, rec EpisodicRecord) (int64, error)
	Episodes(ctx context.Context, userID, theme string) ([]EpisodicRecord, error)
	CountEpisodes(ctx context.Context, userID, theme string) (int, error)
}

// ProfileStore persists consolidated profiles and their immutable
// snapshots.
type ProfileStore interface {
	SaveProfile(ctx context.Context, p *Profile) error
	Profile(ctx context.Context, userID string) (*Profile, error)
	SaveSnapshot(ctx context.Context, p *Profile) error
	Snapshots(ctx context.Context, userID string, limit int) ([]Profile, error)
}

// DurableStore is the full durable backend contract: turn log, episodic
// tier and profile tier behind one connection.
type DurableStore interface {
	TurnLog
	EpisodicStore
	ProfileStore

	ClearUser(ctx context.Context, userID string) error
	Close() error
}
