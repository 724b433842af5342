package model

// QueueMessage is the unit pushed onto the work queue by the ingestion
// endpoint and drained by the aggregator. Exactly one message is enqueued
// per accepted ingestion call; queue order is arrival order.
type QueueMessage struct {
	UserID    string      `json:"userId"`
	Timezone  string      `json:"timezone"`
	Batch     []Heartbeat `json:"batch"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// Valid reports whether the message has the shape the aggregator requires.
// Individual heartbeats are validated separately.
func (m QueueMessage) Valid() bool {
	return m.UserID != "" && len(m.Batch) > 0
}
