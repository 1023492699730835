package work

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// CompletionTracker enforces that every expected task reports exactly once.
type CompletionTracker struct {
	expected    map[string]time.Time // key -> accepted at
	completions map[string]time.Time // key -> reported at
	mu          sync.RWMutex
}

// NewCompletionTracker creates a new completion tracker.
func NewCompletionTracker() *CompletionTracker {
	return &CompletionTracker{
		expected:    make(map[string]time.Time),
		completions: make(map[string]time.Time),
	}
}

// makeKey creates a unique key for a task from its submission sequence and id.
func makeKey(seq int64, id string) string {
	if id == "" {
		return strconv.FormatInt(seq, 10)
	}
	return strconv.FormatInt(seq, 10) + ":" + id
}

// Expect registers a task that must report later.
func (t *CompletionTracker) Expect(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.expected[key]; exists {
		return fmt.Errorf("work: task %s already expected", key)
	}
	t.expected[key] = time.Now()
	return nil
}

// MarkCompleted records the report of a task. It fails for unknown tasks and for tasks that
// already reported; the caller must then not deliver the outcome.
func (t *CompletionTracker) MarkCompleted(key string) error {
	return t.MarkCompletedAt(key, time.Now())
}

// MarkCompletedAt records the report of a task at a specific time.
func (t *CompletionTracker) MarkCompletedAt(key string, completedAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.expected[key]; !exists {
		return fmt.Errorf("work: task %s was never accepted", key)
	}
	if _, done := t.completions[key]; done {
		return fmt.Errorf("work: task %s already reported", key)
	}
	t.completions[key] = completedAt
	return nil
}

// GetCompletion returns when a task reported.
func (t *CompletionTracker) GetCompletion(key string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	completedAt, exists := t.completions[key]
	return completedAt, exists
}

// Pending returns the keys of tasks that have not reported yet, oldest first.
func (t *CompletionTracker) Pending() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pending := make([]string, 0, len(t.expected)-len(t.completions))
	for key := range t.expected {
		if _, done := t.completions[key]; !done {
			pending = append(pending, key)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		a, b := t.expected[pending[i]], t.expected[pending[j]]
		if a.Equal(b) {
			return pending[i] < pending[j]
		}
		return a.Before(b)
	})
	return pending
}

// Counts returns how many tasks were expected and how many reported.
func (t *CompletionTracker) Counts() (expected, completed int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.expected), len(t.completions)
}
