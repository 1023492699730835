// Package work runs independent tasks on a bounded pool of worker goroutines and reports each
// outcome through a completion listener.
//
// # Pool
//
// A Pool owns a fixed number of workers, by default one per logical CPU. It accepts plain jobs
// until Shutdown, which drains what was already queued and stops the workers.
//
// # Services
//
// A Service groups the tasks of one batch on a pool:
//   - Execute hands a task to the pool; the result arrives later through the listener
//   - Join waits until every accepted task has reported
//   - Cancel stops dispatching; tasks still queued report ErrCancelled, running tasks finish
//
// Every accepted task reports exactly once, through OnSuccess or OnFailure. Errors and panics
// raised by a task are caught at the task boundary and reported through OnFailure; they never
// take a worker down.
//
// Listener callbacks run on worker goroutines and may run concurrently.
package work
