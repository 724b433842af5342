package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trackio.app/trackio/internal/model"
)

// Queue is the durable, ordered buffer between ingestion and aggregation.
// Push appends to the tail; Peek reads a head prefix without removing it;
// Trim atomically removes the first n items. Trim is only called after the
// aggregator's database writes commit, which gives at-least-once semantics:
// a crash between Peek and Trim causes reprocessing.
type Queue interface {
	Push(ctx context.Context, msg model.QueueMessage) error
	Peek(ctx context.Context, offset, count int64) ([]Item, error)
	Trim(ctx context.Context, count int64) error
	Len(ctx context.Context) (int64, error)
}

// Locker is the set-if-absent-with-expiry primitive used for aggregator
// mutual exclusion. Acquire returns false when another holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Item is one queue entry in either of the two shapes a backend may hand
// back: raw serialized text, or an already-structured message. Decode
// normalizes both into the canonical QueueMessage before aggregation.
type Item struct {
	Raw     string
	Message *model.QueueMessage
}

// RawItem wraps serialized text as a queue item.
func RawItem(s string) Item {
	return Item{Raw: s}
}

// StructuredItem wraps an in-memory message as a queue item.
func StructuredItem(msg model.QueueMessage) Item {
	return Item{Message: &msg}
}

// Decode returns the canonical message for the item. Raw text is parsed as
// JSON; structured items pass through untouched.
func (it Item) Decode() (model.QueueMessage, error) {
	if it.Message != nil {
		return *it.Message, nil
	}
	var msg model.QueueMessage
	if err := json.Unmarshal([]byte(it.Raw), &msg); err != nil {
		return model.QueueMessage{}, fmt.Errorf("decoding queue item: %w", err)
	}
	return msg, nil
}
