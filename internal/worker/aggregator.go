package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trackio.app/trackio/common/id"
	"trackio.app/trackio/common/logger"
	"trackio.app/trackio/core/config"
	"trackio.app/trackio/internal/model"
	"trackio.app/trackio/internal/queue"
	"trackio.app/trackio/internal/store"
)

// StoreProvider is the slice of the store bundle the aggregator persists
// through.
type StoreProvider interface {
	Summaries() store.SummaryStore
	Runs() store.RunStore
}

// TxRunner runs fn against stores bound to one transaction; fn returning an
// error rolls everything back. Defined here so the aggregator can be
// exercised without a live pool.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}

// Report describes one aggregation pass. AlreadyRunning means the lock was
// held elsewhere and nothing was touched.
type Report struct {
	AlreadyRunning bool
	Fetched        int
	Processed      int
	Errors         int
	Summaries      int
	Totals         int
	Pruned         int64
	Elapsed        time.Duration
}

// Aggregator drains the work queue under a distributed lock, folds heartbeat
// batches into daily buckets, persists them transactionally, and only then
// trims exactly what it fetched.
type Aggregator struct {
	queue   queue.Queue
	locker  queue.Locker
	tx      TxRunner
	lockKey string
	cfg     config.AggregatorConfig
	logger  *slog.Logger
}

func NewAggregator(q queue.Queue, locker queue.Locker, tx TxRunner, lockKey string, cfg config.AggregatorConfig, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		queue:   q,
		locker:  locker,
		tx:      tx,
		lockKey: lockKey,
		cfg:     cfg,
		logger:  log,
	}
}

func (a *Aggregator) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()

	acquired, err := a.locker.Acquire(ctx, a.lockKey, a.cfg.LockTTL)
	if err != nil {
		return Report{}, fmt.Errorf("acquiring lock: %w", err)
	}
	if !acquired {
		a.logger.InfoContext(ctx, "aggregation already running, skipping")
		return Report{AlreadyRunning: true}, nil
	}
	// The lock is released on every exit path, panics included. A crashed
	// run that somehow skips this is covered by the lock TTL.
	defer func() {
		if err := a.locker.Release(ctx, a.lockKey); err != nil {
			a.logger.WarnContext(ctx, "failed to release lock", "error", err)
		}
	}()

	report, err := a.runLocked(ctx, start)
	report.Elapsed = time.Since(start)
	return report, err
}

func (a *Aggregator) runLocked(ctx context.Context, start time.Time) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.ErrorContext(ctx, "panic recovered in aggregation", "panic", r)
			err = fmt.Errorf("aggregation panic: %v", r)
		}
	}()

	items, err := a.queue.Peek(ctx, 0, int64(a.cfg.MaxMessagesPerRun))
	if err != nil {
		return report, fmt.Errorf("peeking queue: %w", err)
	}
	report.Fetched = len(items)
	if len(items) == 0 {
		a.logger.InfoContext(ctx, "queue empty, nothing to aggregate")
		return report, nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{BatchSize: logger.Ptr(len(items))})

	acc := newAccumulator(a.cfg.DurationPerHeartbeat)
	for _, item := range items {
		msg, derr := item.Decode()
		if derr != nil {
			// Malformed items still count toward the trim: leaving them at
			// the head would wedge the queue forever.
			a.logger.WarnContext(ctx, "discarding undecodable queue item", "error", derr)
			report.Errors++
			continue
		}
		if !msg.Valid() {
			a.logger.WarnContext(ctx, "discarding malformed queue message")
			report.Errors++
			continue
		}
		acc.fold(msg)
		report.Processed++
	}

	summaries, totals := acc.results()
	report.Summaries = len(summaries)
	report.Totals = len(totals)

	runID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{RunID: logger.Ptr(runID)})

	txCtx, cancel := context.WithTimeout(ctx, a.cfg.TxTimeout)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.RetentionDays).Format("2006-01-02")
	runRow := &model.AggregationRun{
		ID:        runID,
		Fetched:   report.Fetched,
		Processed: report.Processed,
		Errors:    report.Errors,
		Summaries: report.Summaries,
		Totals:    report.Totals,
		Elapsed:   time.Since(start),
	}

	err = a.tx.WithTx(txCtx, func(stores StoreProvider) error {
		for _, s := range summaries {
			if err := stores.Summaries().UpsertProjectSummary(txCtx, s); err != nil {
				return fmt.Errorf("upserting project summary: %w", err)
			}
		}
		for _, t := range totals {
			if err := stores.Summaries().UpsertActivityTotal(txCtx, t); err != nil {
				return fmt.Errorf("upserting activity total: %w", err)
			}
		}
		pruned, err := stores.Summaries().DeleteSummariesBefore(txCtx, cutoff)
		if err != nil {
			return fmt.Errorf("pruning old summaries: %w", err)
		}
		report.Pruned = pruned
		return stores.Runs().Create(txCtx, runRow)
	})
	if err != nil {
		// Nothing was trimmed: the same items are re-read and re-applied by
		// the next run. Increment upserts make the retry additive, which is
		// an accepted at-least-once tradeoff.
		return report, fmt.Errorf("persisting aggregation: %w", err)
	}

	// Trim exactly what was fetched. Items pushed after the peek survive.
	if err := a.queue.Trim(ctx, int64(report.Fetched)); err != nil {
		return report, fmt.Errorf("trimming queue: %w", err)
	}

	a.logger.InfoContext(ctx, "aggregation complete",
		"fetched", report.Fetched,
		"processed", report.Processed,
		"errors", report.Errors,
		"summaries", report.Summaries,
		"totals", report.Totals,
		"pruned", report.Pruned,
	)
	return report, nil
}
