package keys

import (
	"context"
	"database/sql"
	"time"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed ledger store.
func NewPGStore(db *sql.DB) Store {
	return &pgStore{DB: db}
}

func (s *pgStore) Load(ctx context.Context) (Ledger, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT api_key, calls_used, window_start FROM key_usage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ledger := Ledger{}
	for rows.Next() {
		var key string
		var used int
		var start time.Time
		if err := rows.Scan(&key, &used, &start); err != nil {
			return nil, err
		}
		ledger[key] = UsageRecord{CallsUsed: used, WindowStart: start}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (s *pgStore) Save(ctx context.Context, ledger Ledger) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for key, rec := range ledger {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO key_usage (api_key, calls_used, window_start)
VALUES ($1, $2, $3)
ON CONFLICT (api_key) DO UPDATE SET calls_used = EXCLUDED.calls_used, window_start = EXCLUDED.window_start`,
			key, rec.CallsUsed, rec.WindowStart); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

var _ Store = (*pgStore)(nil)
