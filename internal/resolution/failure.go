package resolution

import (
	"fmt"
	"sync"

	"github.com/aristath/depgraph/internal/value"
)

// FailureKind says why a requirement or candidate failed.
type FailureKind string

const (
	FailureMissingMarketData  FailureKind = "missing_market_data"
	FailureNoMatchingFunction FailureKind = "no_matching_function"
	FailureUnsatisfiedInputs  FailureKind = "unsatisfied_inputs"
	FailureExclusionConflict  FailureKind = "exclusion_conflict"
	FailureRecursion          FailureKind = "recursion"
	FailureInfrastructure     FailureKind = "infrastructure"
)

// Failure records why a requirement, or one candidate for it, could not be used.
type Failure struct {
	Kind        FailureKind
	Requirement value.ValueRequirement
	// FunctionID is the candidate function, empty when the failure concerns the requirement.
	FunctionID string
	Message    string
}

// Key identifies identical failures.
func (f Failure) Key() string {
	return string(f.Kind) + "|" + f.Requirement.Key() + "|" + f.FunctionID + "|" + f.Message
}

// String implements fmt.Stringer.
func (f Failure) String() string {
	if f.FunctionID == "" {
		return fmt.Sprintf("%s: %s: %s", f.Kind, f.Requirement, f.Message)
	}
	return fmt.Sprintf("%s: %s via %s: %s", f.Kind, f.Requirement, f.FunctionID, f.Message)
}

// FailureRecord is a failure with the number of times it was seen.
type FailureRecord struct {
	Failure Failure
	Count   int
}

// FailureSink accumulates failures for one batch. Identical failures collapse into one record,
// first-seen order is kept. Safe for concurrent use.
type FailureSink struct {
	mu      sync.Mutex
	records []FailureRecord
	index   map[string]int
}

// NewFailureSink creates an empty sink.
func NewFailureSink() *FailureSink {
	return &FailureSink{index: make(map[string]int)}
}

// Record adds a failure.
func (s *FailureSink) Record(f Failure) {
	key := f.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[key]; ok {
		s.records[i].Count++
		return
	}
	s.index[key] = len(s.records)
	s.records = append(s.records, FailureRecord{Failure: f, Count: 1})
}

// Records returns a snapshot in first-seen order.
func (s *FailureSink) Records() []FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FailureRecord(nil), s.records...)
}

// Len returns the number of distinct failures.
func (s *FailureSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// FaultError is an infrastructure fault raised while resolving: a market data or catalog error,
// or a malformed candidate. The failure is also recorded in the checker's sink.
type FaultError struct {
	Failure Failure
	Err     error
}

func (e *FaultError) Error() string {
	if e.Failure.FunctionID != "" {
		return fmt.Sprintf("resolution: %s via %s: %v", e.Failure.Requirement, e.Failure.FunctionID, e.Err)
	}
	return fmt.Sprintf("resolution: %s: %v", e.Failure.Requirement, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}
