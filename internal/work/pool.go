package work

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Pool is a fixed set of worker goroutines fed from one job queue.
type Pool struct {
	name    string
	workers int
	jobs    chan func()
	log     zerolog.Logger

	mu       sync.RWMutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewPool starts a pool. A size <= 0 uses DefaultSize.
func NewPool(name string, size int) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	p := &Pool{
		name:    name,
		workers: size,
		jobs:    make(chan func(), size*4),
		log:     zerolog.Nop(),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// SetLogger sets the logger for the pool.
func (p *Pool) SetLogger(log zerolog.Logger) {
	p.log = log.With().Str("component", "work_pool").Str("pool", p.name).Logger()
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.workers
}

// Submit queues a job. It blocks while the queue is full.
func (p *Pool) Submit(job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.shutdown {
		return ErrPoolShutdown
	}
	p.jobs <- job
	return nil
}

// Shutdown stops accepting jobs, runs what is already queued and waits for the workers to exit.
// Calling it more than once is harmless.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Debug().Msg("Pool stopped")
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("panic", fmt.Sprint(r)).Msg("Job panicked")
		}
	}()
	job()
}
