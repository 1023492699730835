package work

import (
	"context"
	"errors"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

var (
	// ErrPoolShutdown is returned when work is submitted to a pool that has been shut down.
	ErrPoolShutdown = errors.New("work: pool is shut down")
	// ErrCancelled is reported for tasks that were accepted but not started before Cancel.
	ErrCancelled = errors.New("work: service cancelled")
)

// Task is one unit of work. ID is used in logs and error messages only; it need not be unique.
type Task[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// NewTask creates a task.
func NewTask[T any](id string, run func(ctx context.Context) (T, error)) Task[T] {
	return Task[T]{ID: id, Run: run}
}

// CompletionListener receives the outcome of every task of a service.
type CompletionListener[T any] interface {
	OnSuccess(result T)
	OnFailure(err error)
}

// ListenerFuncs adapts a pair of functions to CompletionListener. Nil functions are ignored.
type ListenerFuncs[T any] struct {
	Success func(result T)
	Failure func(err error)
}

// OnSuccess implements CompletionListener.
func (l ListenerFuncs[T]) OnSuccess(result T) {
	if l.Success != nil {
		l.Success(result)
	}
}

// OnFailure implements CompletionListener.
func (l ListenerFuncs[T]) OnFailure(err error) {
	if l.Failure != nil {
		l.Failure(err)
	}
}

// DefaultSize returns the number of logical CPUs.
func DefaultSize() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
