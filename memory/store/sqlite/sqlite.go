// Package sqlite implements the durable backend (turn log, episodic
// tier, profiles) on a single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/nowwclub/companion-memory/memory"
)

// Store implements memory.DurableStore using SQLite.
type Store struct {
	db *sql.DB
}

// New opens or creates a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		role        TEXT NOT NULL,
		text        TEXT NOT NULL,
		timestamp   TEXT NOT NULL,
		importance  REAL NOT NULL DEFAULT 0,
		metadata    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user_id, id);

	CREATE TABLE IF NOT EXISTS summary_state (
		user_id       TEXT PRIMARY KEY,
		summary       TEXT NOT NULL,
		covered_turns INTEGER NOT NULL DEFAULT 0,
		updated_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS episodes (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		theme      TEXT NOT NULL,
		emotions   TEXT,
		metaphors  TEXT,
		raw_text   TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (user_id, theme, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_episodes_user ON episodes(user_id, created_at);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id          TEXT PRIMARY KEY,
		traits           TEXT,
		preferences      TEXT,
		goals            TEXT,
		last_consolidated TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profile_snapshots (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		traits     TEXT,
		preferences TEXT,
		goals      TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_user ON profile_snapshots(user_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveTurn appends one turn to the durable log.
func (s *Store) SaveTurn(ctx context.Context, turn memory.Turn) error {
	var metaJSON *string
	if turn.Metadata != nil {
		b, err := json.Marshal(turn.Metadata)
		if err != nil {
			return fmt.Errorf("marshal turn metadata: %w", err)
		}
		str := string(b)
		metaJSON = &str
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, user_id, role, text, timestamp, importance, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.UserID, string(turn.Role), turn.Text,
		turn.Timestamp.UTC().Format(time.RFC3339Nano), turn.Importance, metaJSON)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// RecentTurns returns the last n turns for the user in arrival order,
// oldest first. ULID ids make id order arrival order.
func (s *Store) RecentTurns(ctx context.Context, userID string, n int) ([]memory.Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, text, timestamp, importance, metadata
		 FROM turns WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, n)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []memory.Turn
	for rows.Next() {
		var t memory.Turn
		var role, ts string
		var metaJSON sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &role, &t.Text, &ts, &t.Importance, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = memory.Role(role)
		t.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if metaJSON.Valid {
			var meta memory.TurnMetadata
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
				t.Metadata = &meta
			}
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest first; flip to arrival order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// SaveSummary upserts the rolling summary state for a user.
func (s *Store) SaveSummary(ctx context.Context, state memory.SummaryState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summary_state (user_id, summary, covered_turns, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			summary = excluded.summary,
			covered_turns = excluded.covered_turns,
			updated_at = excluded.updated_at`,
		state.UserID, state.RollingSummary, state.CoveredTurnCount,
		state.LastUpdated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// Summary returns the summary state for a user, or nil if none exists.
func (s *Store) Summary(ctx context.Context, userID string) (*memory.SummaryState, error) {
	state := memory.SummaryState{UserID: userID}
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, covered_turns, updated_at FROM summary_state WHERE user_id = ?`,
		userID).Scan(&state.RollingSummary, &state.CoveredTurnCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	state.LastUpdated, _ = time.Parse(time.RFC3339Nano, updated)
	return &state, nil
}

// AddEpisode appends an episodic record, assigning the next sequence
// number for its (user, theme) pair inside a transaction.
func (s *Store) AddEpisode(ctx context.Context, rec memory.EpisodicRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM episodes WHERE user_id = ? AND theme = ?`,
		rec.UserID, rec.Theme).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}

	emotions, _ := json.Marshal(rec.EmotionTags)
	metaphors, _ := json.Marshal(rec.VisualMetaphors)

	id := rec.ID
	if id == "" {
		id = ulid.Make().String()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO episodes (id, user_id, theme, emotions, metaphors, raw_text, seq, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.UserID, rec.Theme, string(emotions), string(metaphors),
		rec.RawText, seq, createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert episode: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return seq, nil
}

// Episodes returns a user's episodic records in chronological order.
// An empty theme matches all themes.
func (s *Store) Episodes(ctx context.Context, userID, theme string) ([]memory.EpisodicRecord, error) {
	query := `SELECT id, user_id, theme, emotions, metaphors, raw_text, seq, created_at
		 FROM episodes WHERE user_id = ?`
	args := []any{userID}
	if theme != "" {
		query += ` AND theme = ?`
		args = append(args, theme)
	}
	query += ` ORDER BY created_at, seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var records []memory.EpisodicRecord
	for rows.Next() {
		var rec memory.EpisodicRecord
		var emotions, metaphors, created string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Theme, &emotions, &metaphors,
			&rec.RawText, &rec.SequenceNo, &created); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		json.Unmarshal([]byte(emotions), &rec.EmotionTags)
		json.Unmarshal([]byte(metaphors), &rec.VisualMetaphors)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountEpisodes counts a user's episodes, optionally within one theme.
func (s *Store) CountEpisodes(ctx context.Context, userID, theme string) (int, error) {
	query := `SELECT COUNT(*) FROM episodes WHERE user_id = ?`
	args := []any{userID}
	if theme != "" {
		query += ` AND theme = ?`
		args = append(args, theme)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}

// SaveProfile upserts the consolidated profile for a user.
func (s *Store) SaveProfile(ctx context.Context, p *memory.Profile) error {
	traits, _ := json.Marshal(p.Traits)
	prefs, _ := json.Marshal(p.Preferences)
	goals, _ := json.Marshal(p.Goals)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, traits, preferences, goals, last_consolidated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			traits = excluded.traits,
			preferences = excluded.preferences,
			goals = excluded.goals,
			last_consolidated = excluded.last_consolidated`,
		p.UserID, string(traits), string(prefs), string(goals),
		p.LastConsolidated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// Profile returns the consolidated profile, or nil if the user has none.
func (s *Store) Profile(ctx context.Context, userID string) (*memory.Profile, error) {
	p := memory.Profile{UserID: userID}
	var traits, prefs, goals, consolidated string
	err := s.db.QueryRowContext(ctx,
		`SELECT traits, preferences, goals, last_consolidated FROM profiles WHERE user_id = ?`,
		userID).Scan(&traits, &prefs, &goals, &consolidated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	json.Unmarshal([]byte(traits), &p.Traits)
	json.Unmarshal([]byte(prefs), &p.Preferences)
	json.Unmarshal([]byte(goals), &p.Goals)
	p.LastConsolidated, _ = time.Parse(time.RFC3339Nano, consolidated)
	return &p, nil
}

// SaveSnapshot writes an immutable copy of the profile.
func (s *Store) SaveSnapshot(ctx context.Context, p *memory.Profile) error {
	traits, _ := json.Marshal(p.Traits)
	prefs, _ := json.Marshal(p.Preferences)
	goals, _ := json.Marshal(p.Goals)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile_snapshots (id, user_id, traits, preferences, goals, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ulid.Make().String(), p.UserID, string(traits), string(prefs), string(goals),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Snapshots returns the most recent profile snapshots, newest first.
func (s *Store) Snapshots(ctx context.Context, userID string, limit int) ([]memory.Profile, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT traits, preferences, goals, created_at
		 FROM profile_snapshots WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []memory.Profile
	for rows.Next() {
		p := memory.Profile{UserID: userID}
		var traits, prefs, goals, created string
		if err := rows.Scan(&traits, &prefs, &goals, &created); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		json.Unmarshal([]byte(traits), &p.Traits)
		json.Unmarshal([]byte(prefs), &p.Preferences)
		json.Unmarshal([]byte(goals), &p.Goals)
		p.LastConsolidated, _ = time.Parse(time.RFC3339Nano, created)
		snaps = append(snaps, p)
	}
	return snaps, rows.Err()
}

// ClearUser removes every durable record belonging to the user.
func (s *Store) ClearUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM turns WHERE user_id = ?`,
		`DELETE FROM summary_state WHERE user_id = ?`,
		`DELETE FROM episodes WHERE user_id = ?`,
		`DELETE FROM profiles WHERE user_id = ?`,
		`DELETE FROM profile_snapshots WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, userID); err != nil {
			return fmt.Errorf("clear user: %w", err)
		}
	}
	return tx.Commit()
}
