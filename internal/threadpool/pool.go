// Package threadpool defines the ThreadPool contract and its two
// implementations, generalized from original_source's thread_pool/mod.rs,
// shared_queue.rs, and rayon.rs into Go idiom: goroutines in place of OS
// threads, channels in place of crossbeam queues.
package threadpool

// ThreadPool executes submitted units of work on a bounded set of
// workers. SharedQueuePool's Spawn blocks only when its job queue is
// full; AntsPool's Spawn blocks while all of its workers are busy.
//
// A panicking job must not reduce the pool's steady-state worker count —
// both implementations in this package guarantee that.
type ThreadPool interface {
	// Spawn hands job to some worker; see the type comment for when it
	// blocks.
	Spawn(job func())

	// Shutdown stops accepting new jobs and releases pool resources.
	// Jobs already queued are not guaranteed to run to completion.
	Shutdown()
}
