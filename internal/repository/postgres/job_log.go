package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/regflow/internal/model"
)

// JobLogRepository stores one audit row per (day, job) covering every run
// of that job on that day.
type JobLogRepository struct {
	db *pgxpool.Pool
}

// NewJobLogRepository constructs a JobLogRepository.
func NewJobLogRepository(db *pgxpool.Pool) *JobLogRepository {
	return &JobLogRepository{db: db}
}

// mergedIDs unions the stored ids with the incoming ones, first seen first.
const mergedIDs = `ARRAY(
	SELECT id
	  FROM unnest(daily_job_logs.ids || EXCLUDED.ids) WITH ORDINALITY AS t(id, n)
	 GROUP BY id
	 ORDER BY min(n))`

// Write upserts the entry. A later run on the same day merges its ids into
// the existing row, keeping first-seen order, and moves the timestamp.
func (r *JobLogRepository) Write(ctx context.Context, entry model.DailyJobLog) error {
	ids := entry.IDs
	if ids == nil {
		ids = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO daily_job_logs (day, job_name, count, ids, ts)
		 VALUES ($1, $2, cardinality($3::text[]), $3, $4)
		 ON CONFLICT (day, job_name) DO UPDATE
		    SET ids   = `+mergedIDs+`,
		        count = cardinality(`+mergedIDs+`),
		        ts    = EXCLUDED.ts`,
		entry.Day, entry.JobName, ids, entry.Timestamp,
	)
	return wrap("write job log", err)
}

// Get returns the entry for day and job or ErrNotFound.
func (r *JobLogRepository) Get(ctx context.Context, day, jobName string) (*model.DailyJobLog, error) {
	var e model.DailyJobLog
	err := r.db.QueryRow(ctx,
		`SELECT day, job_name, count, ids, ts FROM daily_job_logs WHERE day = $1 AND job_name = $2`,
		day, jobName,
	).Scan(&e.Day, &e.JobName, &e.Count, &e.IDs, &e.Timestamp)
	if err != nil {
		return nil, wrap("get job log", err)
	}
	return &e, nil
}

// ListByDay returns all job entries for a day.
func (r *JobLogRepository) ListByDay(ctx context.Context, day string) ([]model.DailyJobLog, error) {
	rows, err := r.db.Query(ctx,
		`SELECT day, job_name, count, ids, ts FROM daily_job_logs WHERE day = $1 ORDER BY job_name`,
		day,
	)
	if err != nil {
		return nil, wrap("list job logs", err)
	}
	defer rows.Close()

	var entries []model.DailyJobLog
	for rows.Next() {
		var e model.DailyJobLog
		if err := rows.Scan(&e.Day, &e.JobName, &e.Count, &e.IDs, &e.Timestamp); err != nil {
			return nil, wrap("scan job log", err)
		}
		entries = append(entries, e)
	}
	return entries, wrap("list job logs", rows.Err())
}
