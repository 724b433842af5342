package model

import (
	"strings"
	"time"
)

// Category classifies what kind of activity a heartbeat represents.
type Category string

const (
	CategoryCoding    Category = "coding"
	CategoryDebugging Category = "debugging"
)

func (c Category) Valid() bool {
	return c == CategoryCoding || c == CategoryDebugging
}

const (
	// MaxProjectLen bounds the project display name.
	MaxProjectLen = 255
	// MaxLanguageLen bounds the optional language identifier.
	MaxLanguageLen = 50
)

// Heartbeat is one observed activity instant from a coding session.
// Entity is the client-side file path; it never leaves the client and is
// dropped before aggregation.
type Heartbeat struct {
	Entity   string   `json:"entity,omitempty"`
	Time     float64  `json:"time"`
	IsWrite  bool     `json:"is_write"`
	Project  string   `json:"project"`
	Language string   `json:"language,omitempty"`
	Category Category `json:"category"`
}

// Valid reports whether the heartbeat satisfies the aggregation shape:
// positive timestamp, non-empty bounded project, known category.
func (h Heartbeat) Valid() bool {
	if h.Time <= 0 {
		return false
	}
	project := strings.TrimSpace(h.Project)
	if project == "" || len(project) > MaxProjectLen {
		return false
	}
	if len(h.Language) > MaxLanguageLen {
		return false
	}
	return h.Category.Valid()
}

// Timestamp converts the Unix seconds value into a time.Time.
func (h Heartbeat) Timestamp() time.Time {
	sec := int64(h.Time)
	nsec := int64((h.Time - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// BatchPayload is an emitter's unsent unit of work: an ordered sequence of
// heartbeats plus the client's IANA timezone.
type BatchPayload struct {
	Timezone   string      `json:"timezone"`
	Heartbeats []Heartbeat `json:"heartbeats"`
}

// CachedBatch is the on-disk representation of an unsent BatchPayload.
// Never written for an empty payload; expires after the cache retention window.
type CachedBatch struct {
	Timestamp time.Time    `json:"timestamp"`
	Payload   BatchPayload `json:"payload"`
}
