package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trackio.app/trackio/common/logger"
	"trackio.app/trackio/internal/model"
	"trackio.app/trackio/internal/queue"
	"trackio.app/trackio/internal/ratelimit"
	"trackio.app/trackio/internal/store"
)

var (
	// ErrInvalidAPIKey covers a missing record, an out-of-bounds key, and a
	// lookup timeout: all three must look identical to the caller.
	ErrInvalidAPIKey = errors.New("invalid api key")

	// ErrQueueUnavailable means the payload was valid but could not be made
	// durable. Accepted data is never silently dropped.
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrMalformedPayload means the body was not parseable JSON. Parsing
	// happens after the credential and rate gates, so unauthenticated
	// senders never learn whether their body was well formed.
	ErrMalformedPayload = errors.New("malformed payload")
)

// RateLimitError carries the retry hint surfaced via the Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// FieldError is one itemized schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every schema violation in a payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %d field error(s)", len(e.Fields))
}

type IngestConfig struct {
	MaxBatchSize     int
	KeyLookupTimeout time.Duration
}

// HeartbeatService is the ingestion boundary's business logic: credential
// resolution, rate limiting, schema validation, and the queue push. It never
// aggregates; that is strictly deferred to the worker.
type HeartbeatService interface {
	Ingest(ctx context.Context, apiKey string, body []byte) (int, error)
	Summaries(ctx context.Context, apiKey, from, to string) (*SummaryReport, error)
}

// SummaryReport is the read-boundary view the dashboard consumes.
type SummaryReport struct {
	Projects []model.ProjectSummary
	Totals   []model.ActivityTotal
}

type heartbeatService struct {
	apiKeys   store.APIKeyStore
	summaries store.SummaryStore
	queue     queue.Queue
	limiter   ratelimit.Limiter
	cfg       IngestConfig
	logger    *slog.Logger
}

func NewHeartbeatService(apiKeys store.APIKeyStore, summaries store.SummaryStore, q queue.Queue, limiter ratelimit.Limiter, cfg IngestConfig, log *slog.Logger) HeartbeatService {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1000
	}
	if cfg.KeyLookupTimeout <= 0 {
		cfg.KeyLookupTimeout = 5 * time.Second
	}
	return &heartbeatService{
		apiKeys:   apiKeys,
		summaries: summaries,
		queue:     q,
		limiter:   limiter,
		cfg:       cfg,
		logger:    log,
	}
}

// HashAPIKey returns the hex SHA-256 digest of a plaintext key. Only hashed
// forms ever touch storage or comparison.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func (s *heartbeatService) Ingest(ctx context.Context, apiKey string, body []byte) (int, error) {
	userID, err := s.resolveUser(ctx, apiKey)
	if err != nil {
		return 0, err
	}

	result, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		// Limiter implementations fail open themselves; a returned error here
		// is a contract violation, so fail open again rather than block.
		s.logger.WarnContext(ctx, "rate limiter error, failing open", "error", err)
	} else if !result.Allowed {
		return 0, &RateLimitError{RetryAfter: result.RetryAfter}
	}

	var payload model.BatchPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		UserID:    logger.Ptr(userID),
		BatchSize: logger.Ptr(len(payload.Heartbeats)),
		Timezone:  logger.Ptr(payload.Timezone),
	})

	if verr := validatePayload(payload, s.cfg.MaxBatchSize); verr != nil {
		return 0, verr
	}

	msg := model.QueueMessage{
		UserID:    userID,
		Timezone:  payload.Timezone,
		Batch:     payload.Heartbeats,
		Timestamp: time.Now().Unix(),
	}

	if err := s.queue.Push(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue batch", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	s.logger.InfoContext(ctx, "batch accepted")
	return len(payload.Heartbeats), nil
}

func (s *heartbeatService) Summaries(ctx context.Context, apiKey, from, to string) (*SummaryReport, error) {
	userID, err := s.resolveUser(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	var fields []FieldError
	for name, v := range map[string]string{"from": from, "to": to} {
		if _, err := time.Parse("2006-01-02", v); err != nil {
			fields = append(fields, FieldError{Field: name, Message: "must be a YYYY-MM-DD date"})
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	projects, err := s.summaries.ListProjectSummaries(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing project summaries: %w", err)
	}
	totals, err := s.summaries.ListActivityTotals(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing activity totals: %w", err)
	}

	return &SummaryReport{Projects: projects, Totals: totals}, nil
}

// resolveUser hashes the plaintext credential and looks up the owner under a
// bounded deadline. A slow store must not hang the request; a timed-out
// lookup is treated as "not found".
func (s *heartbeatService) resolveUser(ctx context.Context, apiKey string) (string, error) {
	if apiKey == "" || len(apiKey) > 256 {
		return "", ErrInvalidAPIKey
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.KeyLookupTimeout)
	defer cancel()

	userID, err := s.apiKeys.GetUserIDByHash(lookupCtx, HashAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, context.DeadlineExceeded) {
			return "", ErrInvalidAPIKey
		}
		return "", fmt.Errorf("looking up api key: %w", err)
	}
	return userID, nil
}

func validatePayload(payload model.BatchPayload, maxBatch int) *ValidationError {
	var fields []FieldError

	if _, err := time.LoadLocation(payload.Timezone); err != nil || payload.Timezone == "" {
		fields = append(fields, FieldError{Field: "timezone", Message: "must be a resolvable IANA zone name"})
	}

	switch {
	case len(payload.Heartbeats) == 0:
		fields = append(fields, FieldError{Field: "heartbeats", Message: "must be a non-empty array"})
	case len(payload.Heartbeats) > maxBatch:
		fields = append(fields, FieldError{
			Field:   "heartbeats",
			Message: fmt.Sprintf("must contain at most %d heartbeats", maxBatch),
		})
	}

	for i, hb := range payload.Heartbeats {
		if hb.Time <= 0 {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("heartbeats[%d].time", i),
				Message: "must be a positive unix timestamp",
			})
		}
		if project := strings.TrimSpace(hb.Project); project == "" || len(project) > model.MaxProjectLen {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("heartbeats[%d].project", i),
				Message: fmt.Sprintf("must be 1-%d characters", model.MaxProjectLen),
			})
		}
		if len(hb.Language) > model.MaxLanguageLen {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("heartbeats[%d].language", i),
				Message: fmt.Sprintf("must be at most %d characters", model.MaxLanguageLen),
			})
		}
		if !hb.Category.Valid() {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("heartbeats[%d].category", i),
				Message: `must be "coding" or "debugging"`,
			})
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
