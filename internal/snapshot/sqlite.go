package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inamate/nestbox/internal/typeid"
)

const (
	sqliteInsertSnapshot = `
INSERT INTO snapshots (id, session_id, version, document, created_at)
SELECT ?1, ?2, COALESCE(MAX(version), 0) + 1, ?3, ?4
FROM snapshots WHERE session_id = ?2
RETURNING version`

	sqliteLatestSnapshot = `
SELECT id, session_id, version, document, created_at
FROM snapshots
WHERE session_id = ?
ORDER BY version DESC
LIMIT 1`
)

// SQLite stores snapshots in a sqlite file. The connection pool is capped
// at one connection, which serializes version allocation.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Create(ctx context.Context, sessionID string, doc json.RawMessage) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{
		ID:        typeid.NewSnapshotID(),
		SessionID: sessionID,
		Document:  doc,
		CreatedAt: now,
	}

	err := s.db.QueryRowContext(ctx, sqliteInsertSnapshot,
		snap.ID, sessionID, string(doc), now.Format(time.RFC3339Nano),
	).Scan(&snap.Version)
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	return snap, nil
}

func (s *SQLite) Latest(ctx context.Context, sessionID string) (*Snapshot, error) {
	var snap Snapshot
	var data, created string
	err := s.db.QueryRowContext(ctx, sqliteLatestSnapshot, sessionID).
		Scan(&snap.ID, &snap.SessionID, &snap.Version, &data, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}

	snap.Document = json.RawMessage(data)
	if snap.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse snapshot time: %w", err)
	}
	return &snap, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
