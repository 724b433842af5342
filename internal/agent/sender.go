package agent

import (
	"context"
	"log/slog"
	"time"

	"trackio.app/trackio/internal/model"
)

// Status is the human-facing state surfaced to the host UI. Raw errors never
// cross this boundary.
type Status int

const (
	StatusActive Status = iota
	StatusRetrying
	StatusInvalidKey
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "tracking active"
	case StatusRetrying:
		return "send failed, will retry"
	case StatusInvalidKey:
		return "invalid key - please reconfigure"
	default:
		return "unknown"
	}
}

type SenderConfig struct {
	Timezone      string
	FlushInterval time.Duration
}

// Sender periodically drains the emitter and pushes batches through the
// transport, handling retry, credential failure, and restart durability via
// the cache.
type Sender struct {
	emitter   *Emitter
	cache     *Cache
	transport Transport
	cfg       SenderConfig
	onStatus  func(Status)
	logger    *slog.Logger

	stopped bool
}

func NewSender(emitter *Emitter, cache *Cache, transport Transport, cfg SenderConfig, onStatus func(Status), log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	if onStatus == nil {
		onStatus = func(Status) {}
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	return &Sender{
		emitter:   emitter,
		cache:     cache,
		transport: transport,
		cfg:       cfg,
		onStatus:  onStatus,
		logger:    log,
	}
}

// Run restores any cached batch, then flushes on an interval until the
// context is cancelled. On shutdown it attempts one final send and persists
// whatever could not be delivered.
func (s *Sender) Run(ctx context.Context) error {
	s.restore(ctx)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
			if s.Flush(ctx) == OutcomeInvalidKey {
				return nil
			}
		}
	}
}

// Flush drains pending heartbeats and attempts one delivery. On a transient
// failure the whole batch goes back to the front of the queue and to disk;
// on credential failure everything is discarded and sending stops.
func (s *Sender) Flush(ctx context.Context) Outcome {
	if s.stopped {
		return OutcomeInvalidKey
	}

	batch := s.emitter.Drain()
	if len(batch) == 0 {
		return OutcomeAccepted
	}

	payload := model.BatchPayload{
		Timezone:   s.cfg.Timezone,
		Heartbeats: batch,
	}

	outcome, err := s.transport.Send(ctx, payload)
	switch outcome {
	case OutcomeAccepted:
		s.cache.Clear(ctx)
		s.logger.InfoContext(ctx, "batch sent", "heartbeats", len(batch))
		s.onStatus(StatusActive)

	case OutcomeInvalidKey:
		// Undeliverable without a new credential: drop buffered data and
		// stop auto-sending until the operator reconfigures.
		s.logger.ErrorContext(ctx, "api key rejected, discarding buffered data", "error", err)
		s.emitter.Discard()
		s.cache.Clear(ctx)
		s.stopped = true
		s.onStatus(StatusInvalidKey)

	case OutcomeTransient:
		s.logger.WarnContext(ctx, "send failed, re-queueing batch",
			"heartbeats", len(batch), "error", err)
		s.emitter.RequeueFront(batch)
		if cerr := s.cache.Save(ctx, model.BatchPayload{
			Timezone:   s.cfg.Timezone,
			Heartbeats: s.emitter.peek(),
		}); cerr != nil {
			s.logger.WarnContext(ctx, "failed to cache pending batch", "error", cerr)
		}
		s.onStatus(StatusRetrying)
	}
	return outcome
}

// restore loads a previously cached batch into the pending queue ahead of
// anything recorded since startup.
func (s *Sender) restore(ctx context.Context) {
	payload, err := s.cache.LoadAndClear(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to restore cached batch", "error", err)
		return
	}
	if payload == nil {
		return
	}
	s.logger.InfoContext(ctx, "restored cached batch", "heartbeats", len(payload.Heartbeats))
	s.emitter.RequeueFront(payload.Heartbeats)
}

// shutdown makes a last delivery attempt off the cancelled context, then
// persists anything still pending.
func (s *Sender) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.emitter.Stop()
	if s.stopped {
		return
	}

	if outcome := s.Flush(ctx); outcome == OutcomeAccepted {
		remaining := s.emitter.peek()
		if len(remaining) == 0 {
			return
		}
	}
	if err := s.cache.Save(ctx, model.BatchPayload{
		Timezone:   s.cfg.Timezone,
		Heartbeats: s.emitter.peek(),
	}); err != nil {
		s.logger.Warn("failed to persist pending batch on shutdown", "error", err)
	}
}
