package store

import (
	"context"

	"trackio.app/trackio/internal/model"
)

type runStore struct {
	db DBTX
}

func newRunStore(db DBTX) RunStore {
	return &runStore{db: db}
}

func (s *runStore) Create(ctx context.Context, run *model.AggregationRun) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO aggregation_runs
		   (id, fetched, processed, errors, summaries, totals, elapsed_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		run.ID, run.Fetched, run.Processed, run.Errors,
		run.Summaries, run.Totals, run.Elapsed.Milliseconds(),
	).Scan(&run.CreatedAt)
}
