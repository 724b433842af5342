package worker

import (
	"context"
	"log/slog"
	"time"
)

// Runner drives the aggregator on a fixed interval until stopped. Overlap
// between instances is handled by the distributed lock, not the ticker.
type Runner struct {
	aggregator *Aggregator
	interval   time.Duration

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewRunner(aggregator *Aggregator, interval time.Duration) *Runner {
	return &Runner{
		aggregator: aggregator,
		interval:   interval,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stoppedCh)

	slog.InfoContext(ctx, "aggregation runner started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// One immediate pass on startup so a restart doesn't leave the queue
	// sitting for a full interval.
	r.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			slog.InfoContext(ctx, "aggregation runner stopping")
			return nil
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

func (r *Runner) runOnce(ctx context.Context) {
	report, err := r.aggregator.RunOnce(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "aggregation run failed", "error", err, "fetched", report.Fetched)
	}
}
