// Package history persists finalized routing decisions to a local SQLite
// database so recent turns can be inspected over HTTP and MCP.
//
// Writes happen on the decision hook path, off the turn's critical path; a
// history failure never affects routing.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hanashi-ai/hanashi/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	turn_id         TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	text            TEXT NOT NULL,
	stage           TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	response        TEXT NOT NULL,
	entity_id       TEXT,
	score           REAL,
	attempts        TEXT,
	duration_ms     INTEGER NOT NULL,
	decided_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_decided_at ON turns (decided_at DESC);
CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns (conversation_id, decided_at DESC);
`

// Record is one persisted turn.
type Record struct {
	TurnID         string          `json:"turn_id"`
	ConversationID string          `json:"conversation_id"`
	Text           string          `json:"text"`
	Stage          model.Stage     `json:"stage"`
	Outcome        model.Outcome   `json:"outcome"`
	Response       string          `json:"response"`
	EntityID       string          `json:"entity_id,omitempty"`
	Score          float64         `json:"score,omitempty"`
	Attempts       []model.Attempt `json:"attempts,omitempty"`
	DurationMS     int64           `json:"duration_ms"`
	DecidedAt      time.Time       `json:"decided_at"`
}

// Store is the SQLite-backed turn history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the history database at path.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// The modernc driver serializes access; a single connection avoids
	// SQLITE_BUSY under concurrent hook writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Record persists one finalized decision.
func (s *Store) Record(ctx context.Context, d model.RoutingDecision) error {
	var entityID string
	if d.Executed != nil {
		entityID = d.Executed.EntityID
	}
	attempts, err := json.Marshal(d.Attempts)
	if err != nil {
		return fmt.Errorf("history: marshal attempts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO turns
		(turn_id, conversation_id, text, stage, outcome, response, entity_id, score, attempts, duration_ms, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.TurnID.String(), d.ConversationID.String(), d.Text,
		string(d.Stage), string(d.Outcome), d.Response,
		entityID, d.Score, string(attempts),
		d.Duration.Milliseconds(), d.DecidedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("history: insert turn: %w", err)
	}
	return nil
}

// Recent returns up to limit turns, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_id, conversation_id, text, stage, outcome, response, entity_id, score, attempts, duration_ms, decided_at
		FROM turns ORDER BY decided_at DESC, turn_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		var stage, outcome, attempts string
		if err := rows.Scan(&rec.TurnID, &rec.ConversationID, &rec.Text,
			&stage, &outcome, &rec.Response, &rec.EntityID, &rec.Score,
			&attempts, &rec.DurationMS, &rec.DecidedAt); err != nil {
			return nil, fmt.Errorf("history: scan turn: %w", err)
		}
		rec.Stage = model.Stage(stage)
		rec.Outcome = model.Outcome(outcome)
		if attempts != "" {
			if err := json.Unmarshal([]byte(attempts), &rec.Attempts); err != nil {
				s.logger.Warn("history: corrupt attempts json", "turn_id", rec.TurnID, "error", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Healthy pings the database.
func (s *Store) Healthy(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// OnDecision implements the router's decision hook.
func (s *Store) OnDecision(ctx context.Context, d model.RoutingDecision) {
	if err := s.Record(ctx, d); err != nil {
		s.logger.Warn("history: record turn failed", "turn_id", d.TurnID, "error", err)
	}
}
