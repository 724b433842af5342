package store

import (
	"context"

	"trackio.app/trackio/internal/model"
)

type summaryStore struct {
	db DBTX
}

func newSummaryStore(db DBTX) SummaryStore {
	return &summaryStore{db: db}
}

func (s *summaryStore) UpsertProjectSummary(ctx context.Context, summary model.ProjectSummary) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO daily_project_summaries
		   (user_id, date, project_name, language, category, duration_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, date, project_name, language, category)
		 DO UPDATE SET duration_seconds =
		   daily_project_summaries.duration_seconds + EXCLUDED.duration_seconds`,
		summary.UserID, summary.Date, summary.ProjectName,
		summary.Language, string(summary.Category), summary.DurationSeconds,
	)
	return err
}

func (s *summaryStore) UpsertActivityTotal(ctx context.Context, total model.ActivityTotal) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO daily_activity_totals
		   (user_id, date, total_coding_seconds, total_debugging_seconds)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, date)
		 DO UPDATE SET
		   total_coding_seconds =
		     daily_activity_totals.total_coding_seconds + EXCLUDED.total_coding_seconds,
		   total_debugging_seconds =
		     daily_activity_totals.total_debugging_seconds + EXCLUDED.total_debugging_seconds`,
		total.UserID, total.Date, total.CodingSeconds, total.DebuggingSeconds,
	)
	return err
}

func (s *summaryStore) DeleteSummariesBefore(ctx context.Context, date string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM daily_project_summaries WHERE date < $1`, date)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *summaryStore) ListProjectSummaries(ctx context.Context, userID, from, to string) ([]model.ProjectSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id, to_char(date, 'YYYY-MM-DD'), project_name, language, category, duration_seconds
		 FROM daily_project_summaries
		 WHERE user_id = $1 AND date >= $2 AND date <= $3
		 ORDER BY date, project_name, language, category`,
		userID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.ProjectSummary
	for rows.Next() {
		var s model.ProjectSummary
		var category string
		if err := rows.Scan(&s.UserID, &s.Date, &s.ProjectName, &s.Language, &category, &s.DurationSeconds); err != nil {
			return nil, err
		}
		s.Category = model.Category(category)
		result = append(result, s)
	}
	return result, rows.Err()
}

func (s *summaryStore) ListActivityTotals(ctx context.Context, userID, from, to string) ([]model.ActivityTotal, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id, to_char(date, 'YYYY-MM-DD'), total_coding_seconds, total_debugging_seconds
		 FROM daily_activity_totals
		 WHERE user_id = $1 AND date >= $2 AND date <= $3
		 ORDER BY date`,
		userID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.ActivityTotal
	for rows.Next() {
		var t model.ActivityTotal
		if err := rows.Scan(&t.UserID, &t.Date, &t.CodingSeconds, &t.DebuggingSeconds); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
