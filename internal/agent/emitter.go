package agent

import (
	"strings"
	"sync"
	"time"

	"trackio.app/trackio/internal/model"
)

// Activity is one raw editor signal: selection moved, text changed, focus
// switched, or a save. Arbitrary rate; the emitter throttles it.
type Activity struct {
	Entity   string
	Project  string
	Language string
	IsWrite  bool
}

// emitterState is the debounce position: idle (no timer), pending (timer
// armed, resets on activity). Firing is trailing-edge only: a heartbeat is
// recorded once no activity arrives for a full window.
type emitterState int

const (
	stateIdle emitterState = iota
	statePending
)

// Emitter folds a stream of raw activity into discrete heartbeats and holds
// them in an in-memory pending queue until a sender drains it. It does no
// network or disk I/O itself.
type Emitter struct {
	clock  Clock
	window time.Duration

	mu        sync.Mutex
	state     emitterState
	timer     Timer
	last      Activity
	debugging bool
	pending   []model.Heartbeat
}

func NewEmitter(clock Clock, window time.Duration) *Emitter {
	if clock == nil {
		clock = SystemClock
	}
	return &Emitter{
		clock:  clock,
		window: window,
	}
}

// Observe feeds one activity signal into the debounce. Signals on non
// file-backed resources (output panes, diff views, untitled buffers) are
// ignored.
func (e *Emitter) Observe(a Activity) {
	if !fileBacked(a.Entity) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.last = a
	switch e.state {
	case stateIdle:
		e.state = statePending
		if e.timer == nil {
			e.timer = e.clock.AfterFunc(e.window, e.fire)
		} else {
			e.timer.Reset(e.window)
		}
	case statePending:
		e.timer.Reset(e.window)
	}
}

// SetDebugging toggles the category for subsequently fired heartbeats. The
// debug session state is independent of the debounce timer.
func (e *Emitter) SetDebugging(active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.debugging = active
}

// fire runs when the window elapses with no further activity.
func (e *Emitter) fire() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != statePending {
		return
	}
	e.state = stateIdle

	category := model.CategoryCoding
	if e.debugging {
		category = model.CategoryDebugging
	}
	e.pending = append(e.pending, model.Heartbeat{
		Entity:   e.last.Entity,
		Time:     float64(e.clock.Now().UnixNano()) / float64(time.Second),
		IsWrite:  e.last.IsWrite,
		Project:  e.last.Project,
		Language: e.last.Language,
		Category: category,
	})
}

// Drain returns the pending heartbeats and empties the queue. The caller
// owns the returned slice; on transport failure it must come back via
// RequeueFront.
func (e *Emitter) Drain() []model.Heartbeat {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.pending
	e.pending = nil
	return out
}

// RequeueFront puts a failed batch back ahead of anything recorded since the
// drain, so retries do not reorder older data behind newer activity.
func (e *Emitter) RequeueFront(batch []model.Heartbeat) {
	if len(batch) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(batch, e.pending...)
}

// Discard drops all pending heartbeats. Used when the credential is
// invalidated and the data can never be delivered.
func (e *Emitter) Discard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
}

// peek returns a copy of the pending queue without draining it.
func (e *Emitter) peek() []model.Heartbeat {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Heartbeat, len(e.pending))
	copy(out, e.pending)
	return out
}

func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Stop cancels any armed timer. Pending heartbeats stay queued for a final
// drain.
func (e *Emitter) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.state = stateIdle
}

// fileBacked filters out virtual resources. Editors surface those with a
// scheme prefix ("output://", "untitled:", "git://"); plain paths and
// file:// URIs are real files.
func fileBacked(entity string) bool {
	if entity == "" {
		return false
	}
	if i := strings.Index(entity, "://"); i >= 0 {
		return entity[:i] == "file"
	}
	return !strings.HasPrefix(entity, "untitled:")
}
