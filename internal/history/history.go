package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/jcihitachi-core/internal/cloud/thing"
)

// Sources of a history entry.
const (
	SourceCloud   = "cloud"
	SourceCommand = "command"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ErrNoThing is returned for an empty thing name.
var ErrNoThing = errors.New("history: thing name is required")

// Entry is one recorded state.
type Entry struct {
	ID        int64         `json:"id"`
	ThingName string        `json:"thing_name"`
	State     thing.Payload `json:"state"`
	Source    string        `json:"source"`
	CreatedAt time.Time     `json:"created_at"`
}

// Recorder is what the bridge and API need from the store.
type Recorder interface {
	RecordStateChange(ctx context.Context, thingName string, state thing.Payload, source string) error
	GetHistory(ctx context.Context, thingName string, limit int) ([]Entry, error)
}

// Store is the SQLite Recorder. The state_history table comes from the
// embedded migrations.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// RecordStateChange stores state as JSON. An empty source means SourceCloud.
func (s *Store) RecordStateChange(ctx context.Context, thingName string, state thing.Payload, source string) error {
	if thingName == "" {
		return ErrNoThing
	}
	if source == "" {
		source = SourceCloud
	}
	if state == nil {
		state = thing.Payload{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state of %s: %w", thingName, err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO state_history (thing_name, state, source, created_at) VALUES (?, ?, ?, ?)",
		thingName, string(data), source, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// GetHistory returns up to limit entries for thingName, newest first.
// limit <= 0 means 50; it is capped at 500.
func (s *Store) GetHistory(ctx context.Context, thingName string, limit int) ([]Entry, error) {
	if thingName == "" {
		return nil, ErrNoThing
	}
	switch {
	case limit <= 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thing_name, state, source, created_at
		FROM state_history
		WHERE thing_name = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, thingName, limit)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e       Entry
			raw     string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.ThingName, &raw, &e.Source, &created); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if e.State, err = thing.DecodePayload([]byte(raw)); err != nil {
			return nil, fmt.Errorf("decoding state history row %d: %w", e.ID, err)
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan and reports how many went.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: prune age must be positive, got %v", olderThan)
	}
	cutoff := s.now().UTC().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning state history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning state history: %w", err)
	}
	return n, nil
}

// Logger is the subset of logging.Logger RunPruner uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// RunPruner prunes entries older than retention every interval until ctx
// is done. It prunes once immediately.
func (s *Store) RunPruner(ctx context.Context, retention, interval time.Duration, log Logger) {
	if retention <= 0 || interval <= 0 {
		return
	}
	prune := func() {
		n, err := s.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("state history prune failed", "error", err)
		case n > 0:
			log.Info("state history pruned", "rows", n)
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
