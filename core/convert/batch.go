package convert

import (
	"context"
	"runtime"
	"sync"
)

// WorkerPool distributes jobs across a fixed number of goroutines and
// collects their results.
type WorkerPool[Job any, Result any] struct {
	numWorkers int
	jobs       chan Job
	results    chan Result
	wg         sync.WaitGroup
}

// NewWorkerPool creates a pool. numWorkers <= 0 uses GOMAXPROCS; the pool
// never has more workers than numJobs.
func NewWorkerPool[Job any, Result any](numWorkers, numJobs int) *WorkerPool[Job, Result] {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numJobs > 0 {
		numWorkers = min(numWorkers, numJobs)
	}
	return &WorkerPool[Job, Result]{
		numWorkers: numWorkers,
		jobs:       make(chan Job, numJobs),
		results:    make(chan Result, numJobs),
	}
}

// Start launches the workers.
func (p *WorkerPool[Job, Result]) Start(workerFn func(Job) Result) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.results <- workerFn(job)
			}
		}()
	}
}

// Submit queues a job.
func (p *WorkerPool[Job, Result]) Submit(job Job) {
	p.jobs <- job
}

// Close stops accepting jobs; Results is closed once every worker is done.
func (p *WorkerPool[Job, Result]) Close() {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// Results returns the results channel.
func (p *WorkerPool[Job, Result]) Results() <-chan Result {
	return p.results
}

// Job is one article of a batch with the directory its outputs go to.
type Job struct {
	Input  Input
	OutDir string
}

// Outcome is the result of one batch job. Index is the job's position in
// the batch.
type Outcome struct {
	Index  int
	Job    Job
	Result *Result
	Err    error
}

// Batch converts jobs concurrently, writing each successful conversion's
// outputs to its OutDir. Conversions share nothing but the converter's
// store. Outcomes are returned in job order.
func (c *Converter) Batch(ctx context.Context, jobs []Job, workers int) []Outcome {
	type indexed struct {
		i   int
		job Job
	}
	pool := NewWorkerPool[indexed, Outcome](workers, len(jobs))
	pool.Start(func(j indexed) Outcome {
		out := Outcome{Index: j.i, Job: j.job}
		if err := ctx.Err(); err != nil {
			out.Err = err
			return out
		}
		out.Result, out.Err = c.Convert(ctx, j.job.Input)
		if out.Err == nil && j.job.OutDir != "" {
			out.Err = WriteOutputs(out.Result, j.job.OutDir)
		}
		return out
	})
	for i, j := range jobs {
		pool.Submit(indexed{i: i, job: j})
	}
	pool.Close()

	outcomes := make([]Outcome, len(jobs))
	for o := range pool.Results() {
		outcomes[o.Index] = o
	}
	return outcomes
}
