package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inamate/nestbox/internal/typeid"
)

const (
	pgInsertSnapshot = `
INSERT INTO snapshots (id, session_id, version, document)
SELECT $1::text, $2::text, COALESCE(MAX(version), 0) + 1, $3::jsonb
FROM snapshots WHERE session_id = $2::text
RETURNING version, created_at`

	pgLatestSnapshot = `
SELECT id, session_id, version, document, created_at
FROM snapshots
WHERE session_id = $1
ORDER BY version DESC
LIMIT 1`
)

// Postgres stores snapshots in a postgres table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Create(ctx context.Context, sessionID string, doc json.RawMessage) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        typeid.NewSnapshotID(),
		SessionID: sessionID,
		Document:  doc,
	}

	var err error
	for range maxVersionRetries {
		err = p.pool.QueryRow(ctx, pgInsertSnapshot, snap.ID, sessionID, []byte(doc)).
			Scan(&snap.Version, &snap.CreatedAt)
		if err == nil {
			return snap, nil
		}
		if !isDuplicateKeyError(err) {
			break
		}
	}
	return nil, fmt.Errorf("create snapshot: %w", err)
}

func (p *Postgres) Latest(ctx context.Context, sessionID string) (*Snapshot, error) {
	var snap Snapshot
	var data []byte
	err := p.pool.QueryRow(ctx, pgLatestSnapshot, sessionID).
		Scan(&snap.ID, &snap.SessionID, &snap.Version, &data, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	snap.Document = data
	return &snap, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
