// Package irbatch runs a pipeline function across many independent
// graphs concurrently, the worker-pool driver behind cmd/ssagraph's
// batch subcommand. Concurrency is strictly across graphs, never
// within one: a buffered task channel fed once and closed, a fixed
// pool of goroutines draining it, atomic counters for progress, and a
// WaitGroup to know when every task has finished.
package irbatch

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/oisee/ssagraph/irnode"
)

// Pipeline processes one graph to completion, returning any error the
// run produced.
type Pipeline func(g *irnode.Graph) error

// Task names a graph for reporting purposes.
type Task struct {
	Name  string
	Graph *irnode.Graph
}

// Result reports one task's outcome.
type Result struct {
	Name string
	Err  error
}

// Pool runs a fixed number of worker goroutines against a task
// channel.
type Pool struct {
	NumWorkers int

	checked atomic.Int64
	failed  atomic.Int64
}

// NewPool creates a pool with the given worker count; 0 or negative
// means runtime.NumCPU().
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Pool{NumWorkers: numWorkers}
}

// Stats returns the number of graphs processed and the number that
// returned a non-nil error.
func (p *Pool) Stats() (checked, failed int64) {
	return p.checked.Load(), p.failed.Load()
}

// Run distributes tasks across the pool's workers, applying pipeline to
// each graph, and returns one Result per task (order not guaranteed to
// match the input order).
func (p *Pool) Run(tasks []Task, pipeline Pipeline) []Result {
	ch := make(chan Task, len(tasks))
	for _, t := range tasks {
		ch <- t
	}
	close(ch)

	resCh := make(chan Result, len(tasks))
	var wg sync.WaitGroup
	for i := 0; i < p.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range ch {
				err := pipeline(t.Graph)
				p.checked.Add(1)
				if err != nil {
					p.failed.Add(1)
				}
				resCh <- Result{Name: t.Name, Err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resCh)
	}()

	results := make([]Result, 0, len(tasks))
	for r := range resCh {
		results = append(results, r)
	}
	return results
}
