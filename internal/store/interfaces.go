package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"trackio.app/trackio/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same store code
// runs inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// APIKeyStore resolves hashed extension credentials to users.
type APIKeyStore interface {
	GetUserIDByHash(ctx context.Context, hashedKey string) (string, error)
	Create(ctx context.Context, key *model.APIKey) error
}

// SummaryStore persists daily aggregation buckets. Upserts increment the
// stored duration rather than overwrite it, which is what keeps limited
// queue reprocessing tolerable.
type SummaryStore interface {
	UpsertProjectSummary(ctx context.Context, s model.ProjectSummary) error
	UpsertActivityTotal(ctx context.Context, t model.ActivityTotal) error
	DeleteSummariesBefore(ctx context.Context, date string) (int64, error)
	ListProjectSummaries(ctx context.Context, userID, from, to string) ([]model.ProjectSummary, error)
	ListActivityTotals(ctx context.Context, userID, from, to string) ([]model.ActivityTotal, error)
}

// RunStore records aggregation run audit rows.
type RunStore interface {
	Create(ctx context.Context, run *model.AggregationRun) error
}

// Stores bundles all store implementations over one DBTX.
type Stores struct {
	apiKeys   APIKeyStore
	summaries SummaryStore
	runs      RunStore
}

func NewStores(dbtx DBTX) *Stores {
	return &Stores{
		apiKeys:   newAPIKeyStore(dbtx),
		summaries: newSummaryStore(dbtx),
		runs:      newRunStore(dbtx),
	}
}

func (s *Stores) APIKeys() APIKeyStore    { return s.apiKeys }
func (s *Stores) Summaries() SummaryStore { return s.summaries }
func (s *Stores) Runs() RunStore          { return s.runs }
