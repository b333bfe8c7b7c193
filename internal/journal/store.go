package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists journal entries.
type Store interface {
	Insert(ctx context.Context, entries []Entry) (inserted int, err error)
}

// DB is the subset of *pgxpool.Pool the journal uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS bot_activity (
	id          UUID PRIMARY KEY,
	bot_id      TEXT NOT NULL,
	kind        TEXT NOT NULL,
	payload     JSONB NOT NULL,
	event_at    TIMESTAMPTZ NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS bot_activity_bot_event_at_idx ON bot_activity (bot_id, event_at DESC);
`

const insertSQL = `
	INSERT INTO bot_activity (id, bot_id, kind, payload, event_at, received_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING
`

// PGStore writes entries to the bot_activity table.
type PGStore struct {
	db DB
}

// NewPGStore creates a store on db.
func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the bot_activity table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create bot_activity: %w", err)
	}
	return nil
}

// Insert writes entries in one batch. Rows whose id already exists are
// skipped and not counted.
func (s *PGStore) Insert(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertSQL, e.ID, e.BotID, e.Kind, []byte(e.Payload), e.EventAt, e.ReceivedAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range entries {
		ct, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert bot_activity: %w", err)
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}
