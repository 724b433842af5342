package model

import "time"

// ProjectSummary is one daily aggregation bucket: durations accumulate per
// (user, local date, project, language, category). Date is the heartbeat's
// own local calendar date in the client timezone, formatted "2006-01-02".
type ProjectSummary struct {
	UserID          string
	Date            string
	ProjectName     string
	Language        string
	Category        Category
	DurationSeconds int64
}

// ActivityTotal is the per-(user, local date) rollup across all projects.
type ActivityTotal struct {
	UserID           string
	Date             string
	CodingSeconds    int64
	DebuggingSeconds int64
}

// AggregationRun is the audit record persisted for every completed
// aggregation pass over the work queue.
type AggregationRun struct {
	ID        int64
	Fetched   int
	Processed int
	Errors    int
	Summaries int
	Totals    int
	Elapsed   time.Duration
	CreatedAt time.Time
}
