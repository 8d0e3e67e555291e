package workerpool

import (
	"sync"

	"github.com/kiteco/skillview/kite-golib/errors"
)

// Job is a unit of work run by the pool
type Job func() error

// Pool runs jobs on a fixed number of goroutines. Jobs share nothing through the pool;
// callers that need results write them to job-owned slots.
type Pool struct {
	jobs chan Job
	quit chan struct{}

	workers sync.WaitGroup
	pending sync.WaitGroup

	m       sync.Mutex
	errs    errors.Errors
	stopped bool
}

// New creates a pool with n workers, n < 1 is treated as 1.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		jobs: make(chan Job),
		quit: make(chan struct{}),
	}
	p.workers.Add(n)
	for i := 0; i < n; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.workers.Done()
	for {
		select {
		case <-p.quit:
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(job)
		}
	}
}

func (p *Pool) run(job Job) {
	defer p.pending.Done()
	if err := job(); err != nil {
		p.m.Lock()
		p.errs = errors.Append(p.errs, err)
		p.m.Unlock()
	}
}

// Add queues jobs without blocking the caller. Jobs added after Stop are dropped.
func (p *Pool) Add(jobs []Job) {
	p.pending.Add(len(jobs))
	go func() {
		for i, job := range jobs {
			select {
			case p.jobs <- job:
			case <-p.quit:
				// release the jobs that will never run
				for range jobs[i:] {
					p.pending.Done()
				}
				return
			}
		}
	}()
}

// Wait blocks until every added job has either run or been dropped by Stop,
// and returns the errors returned by jobs so far.
func (p *Pool) Wait() error {
	p.pending.Wait()

	p.m.Lock()
	defer p.m.Unlock()
	if p.errs == nil {
		return nil
	}
	errs := p.errs
	p.errs = nil
	return errs
}

// Stop signals workers to exit once their current job completes. Queued jobs are dropped.
func (p *Pool) Stop() {
	p.m.Lock()
	defer p.m.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.quit)
}

// Close waits for outstanding jobs, then stops the workers.
func (p *Pool) Close() error {
	err := p.Wait()
	p.Stop()
	p.workers.Wait()
	return err
}
