package work

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Service runs the tasks of one batch on a pool and reports each outcome to its listener.
type Service[T any] struct {
	ctx      context.Context
	pool     *Pool
	listener CompletionListener[T]
	tracker  *CompletionTracker
	progress *ProgressReporter
	log      zerolog.Logger

	// mu orders wg.Add in Execute before wg.Wait in Join.
	mu     sync.RWMutex
	joined bool

	cancelled atomic.Bool
	submitted atomic.Int64
	reported  atomic.Int64
	failed    atomic.Int64
	wg        sync.WaitGroup
}

// NewService creates a service on pool.
func NewService[T any](pool *Pool, listener CompletionListener[T]) *Service[T] {
	return NewServiceWithContext(context.Background(), pool, listener)
}

// NewServiceWithContext creates a service whose tasks run with ctx.
func NewServiceWithContext[T any](ctx context.Context, pool *Pool, listener CompletionListener[T]) *Service[T] {
	return &Service[T]{
		ctx:      ctx,
		pool:     pool,
		listener: listener,
		tracker:  NewCompletionTracker(),
		log:      zerolog.Nop(),
	}
}

// SetLogger sets the logger for the service.
func (s *Service[T]) SetLogger(log zerolog.Logger) {
	s.log = log.With().Str("component", "work_service").Str("pool", s.pool.Name()).Logger()
}

// SetProgressReporter sets the reporter that receives throttled progress events.
func (s *Service[T]) SetProgressReporter(progress *ProgressReporter) {
	s.progress = progress
}

// Execute hands a task to the pool. It returns false, without reporting, once the service is
// cancelled or Join has been called; submit every task of a batch before joining it. If the pool
// is shut down the task reports ErrPoolShutdown and Execute returns false.
func (s *Service[T]) Execute(task Task[T]) bool {
	if s.cancelled.Load() {
		return false
	}

	s.mu.RLock()
	if s.joined {
		s.mu.RUnlock()
		s.log.Warn().Str("task", task.ID).Msg("Task submitted after Join, rejected")
		return false
	}
	seq := s.submitted.Add(1)
	key := makeKey(seq, task.ID)
	if err := s.tracker.Expect(key); err != nil {
		s.mu.RUnlock()
		s.log.Error().Err(err).Str("task", key).Msg("Task rejected")
		s.submitted.Add(-1)
		return false
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	if err := s.pool.Submit(func() { s.run(key, task) }); err != nil {
		s.failure(key, fmt.Errorf("work: task %s: %w", task.ID, err))
		s.wg.Done()
		return false
	}
	return true
}

// Join blocks until every accepted task has reported, or ctx is done. Once Join has been called
// the service accepts no more tasks; Join may be called again after ctx expired.
func (s *Service[T]) Join(ctx context.Context) error {
	s.mu.Lock()
	s.joined = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.progress.Completed(s.Submitted(), s.Reported(), s.Failed())
		return nil
	case <-ctx.Done():
		s.log.Warn().
			Int64("submitted", s.Submitted()).
			Int64("reported", s.Reported()).
			Strs("pending", s.tracker.Pending()).
			Msg("Join abandoned before all tasks reported")
		return ctx.Err()
	}
}

// Cancel stops dispatching. Tasks that have not started report ErrCancelled; running tasks are
// not interrupted.
func (s *Service[T]) Cancel() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.log.Info().Msg("Service cancelled")
	}
}

// Cancelled reports whether Cancel was called.
func (s *Service[T]) Cancelled() bool {
	return s.cancelled.Load()
}

// Submitted returns the number of accepted tasks.
func (s *Service[T]) Submitted() int64 {
	return s.submitted.Load()
}

// Reported returns the number of tasks that reported.
func (s *Service[T]) Reported() int64 {
	return s.reported.Load()
}

// Failed returns the number of tasks that reported through OnFailure.
func (s *Service[T]) Failed() int64 {
	return s.failed.Load()
}

// Pending returns the keys of accepted tasks that have not reported yet.
func (s *Service[T]) Pending() []string {
	return s.tracker.Pending()
}

func (s *Service[T]) run(key string, task Task[T]) {
	defer s.wg.Done()

	if s.cancelled.Load() {
		s.failure(key, fmt.Errorf("work: task %s: %w", task.ID, ErrCancelled))
		return
	}

	result, err := s.execute(task)
	if err != nil {
		s.failure(key, err)
		return
	}
	s.success(key, result)
}

// execute runs the task, turning a panic into an error.
func (s *Service[T]) execute(task Task[T]) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work: task %s panicked: %v", task.ID, r)
		}
	}()
	if task.Run == nil {
		return result, fmt.Errorf("work: task %s has no function", task.ID)
	}
	return task.Run(s.ctx)
}

func (s *Service[T]) success(key string, result T) {
	if !s.markReported(key) {
		return
	}
	defer s.recoverListener(key)
	s.listener.OnSuccess(result)
}

func (s *Service[T]) failure(key string, err error) {
	if !s.markReported(key) {
		return
	}
	s.failed.Add(1)
	s.log.Debug().Err(err).Str("task", key).Msg("Task failed")
	defer s.recoverListener(key)
	s.listener.OnFailure(err)
}

func (s *Service[T]) markReported(key string) bool {
	if err := s.tracker.MarkCompleted(key); err != nil {
		s.log.Error().Err(err).Msg("Duplicate task report suppressed")
		return false
	}
	s.reported.Add(1)
	if s.progress != nil {
		s.progress.Report(s.Submitted(), s.Reported(), s.Failed(), s.tracker.Pending)
	}
	return true
}

func (s *Service[T]) recoverListener(key string) {
	if r := recover(); r != nil {
		s.log.Error().Str("task", key).Str("panic", fmt.Sprint(r)).Msg("Completion listener panicked")
	}
}
