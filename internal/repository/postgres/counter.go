package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterRepository allocates sequential numbers from the counters table.
type CounterRepository struct {
	db *pgxpool.Pool
}

// NewCounterRepository constructs a CounterRepository.
func NewCounterRepository(db *pgxpool.Pool) *CounterRepository {
	return &CounterRepository{db: db}
}

// AllocateNext increments the counter for key inside a transaction.
//
// Naive read-then-write is broken here: two callers reading value 9 would
// both write 10 and hand out the same registration number. The upsert below
// takes the row lock as part of the write itself. For an existing key,
// concurrent callers queue on that lock and each sees the value committed by
// the previous one. For a new key, the unique index on counters.key makes
// the losing INSERT fall through to the UPDATE branch.
func (r *CounterRepository) AllocateNext(ctx context.Context, key string) (next int64, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, wrap("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	err = tx.QueryRow(ctx,
		`INSERT INTO counters (key, value, updated_at)
		 VALUES ($1, 1, now())
		 ON CONFLICT (key) DO UPDATE
		    SET value = counters.value + 1,
		        updated_at = now()
		 RETURNING value`,
		key,
	).Scan(&next)
	if err != nil {
		return 0, wrap("allocate counter", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, wrap("commit transaction", err)
	}
	return next, nil
}

// ReadCurrent returns the last allocated value, or 0 if nothing was
// allocated yet. It does not lock and may be stale.
func (r *CounterRepository) ReadCurrent(ctx context.Context, key string) (int64, error) {
	var value int64
	err := r.db.QueryRow(ctx, `SELECT value FROM counters WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap("read counter", err)
	}
	return value, nil
}
