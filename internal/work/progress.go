package work

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventEmitter defines the interface for emitting events
type EventEmitter interface {
	Emit(event string, data any)
}

// ProgressEvent is emitted while a batch is being worked off.
type ProgressEvent struct {
	Batch     string   `json:"batch"`
	Submitted int64    `json:"submitted"`
	Reported  int64    `json:"reported"`
	Failed    int64    `json:"failed"`
	Pending   []string `json:"pending,omitempty"`
}

// Event names for batch progress
const (
	EventBatchProgress  = "BatchProgress"
	EventBatchCompleted = "BatchCompleted"
)

// Throttle interval for progress events (avoid spam)
const progressThrottleInterval = 100 * time.Millisecond

// maxPendingInEvent caps the pending keys carried by one event.
const maxPendingInEvent = 10

// ProgressReporter emits throttled progress events for one service.
type ProgressReporter struct {
	eventEmitter EventEmitter
	batch        string
	interval     time.Duration

	// Throttling to avoid spam
	lastReport time.Time
	mu         sync.Mutex
}

// NewProgressReporter creates a progress reporter for a batch.
func NewProgressReporter(emitter EventEmitter, batch string) *ProgressReporter {
	return &ProgressReporter{
		eventEmitter: emitter,
		batch:        batch,
		interval:     progressThrottleInterval,
	}
}

// Report emits a progress event unless one was emitted within the throttle interval. pending is
// only called when an event is emitted; it may be nil.
func (r *ProgressReporter) Report(submitted, reported, failed int64, pending func() []string) {
	if r == nil || r.eventEmitter == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Throttle progress events
	if time.Since(r.lastReport) < r.interval {
		return
	}
	r.lastReport = time.Now()

	var keys []string
	if pending != nil {
		keys = pending()
	}
	if len(keys) > maxPendingInEvent {
		keys = keys[:maxPendingInEvent]
	}
	r.eventEmitter.Emit(EventBatchProgress, ProgressEvent{
		Batch:     r.batch,
		Submitted: submitted,
		Reported:  reported,
		Failed:    failed,
		Pending:   keys,
	})
}

// Completed emits the final, unthrottled event.
func (r *ProgressReporter) Completed(submitted, reported, failed int64) {
	if r == nil || r.eventEmitter == nil {
		return
	}
	r.eventEmitter.Emit(EventBatchCompleted, ProgressEvent{
		Batch:     r.batch,
		Submitted: submitted,
		Reported:  reported,
		Failed:    failed,
	})
}

// LogEmitter writes events to a zerolog logger.
type LogEmitter struct {
	log zerolog.Logger
}

// NewLogEmitter creates an emitter logging at info level.
func NewLogEmitter(log zerolog.Logger) *LogEmitter {
	return &LogEmitter{log: log.With().Str("component", "work_progress").Logger()}
}

// Emit implements EventEmitter.
func (e *LogEmitter) Emit(event string, data any) {
	p, ok := data.(ProgressEvent)
	if !ok {
		e.log.Info().Str("event", event).Interface("data", data).Msg("Work event")
		return
	}
	e.log.Info().
		Str("event", event).
		Str("batch", p.Batch).
		Int64("submitted", p.Submitted).
		Int64("reported", p.Reported).
		Int64("failed", p.Failed).
		Strs("pending", p.Pending).
		Msg("Batch progress")
}
