// Package pool fans resize jobs out to a bounded set of worker goroutines.
//
// A Pool is owned by the caller and lives for a single Run: there is no
// package-level state. Jobs are handed to workers in chunks; every job ends
// in exactly one models.Outcome, and a failing or panicking job never stops
// its siblings.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vatsal3003/speedy-resizer/internal/logging"
	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

// DefaultChunkSize is the number of jobs handed to a worker at once.
const DefaultChunkSize = 16

// ProcessFunc handles one job. resize.(*ImageProcessor).ProcessJob fits.
type ProcessFunc func(models.ResizeJob) error

type Options struct {
	// Concurrency is the number of workers. 0 = runtime.NumCPU().
	Concurrency int
	// ChunkSize is the scheduling granularity. 0 = DefaultChunkSize.
	ChunkSize int
	// OnOutcome is called after each job reaches a terminal state. Calls are
	// serialized, so the hook need not be safe for concurrent use.
	OnOutcome func(models.Outcome)
	// Log receives one entry per failed job. Nil discards.
	Log logrus.FieldLogger
}

type Pool struct {
	process     ProcessFunc
	concurrency int
	chunkSize   int
	onOutcome   func(models.Outcome)
	log         logrus.FieldLogger

	hookMu sync.Mutex
}

func New(process ProcessFunc, opts Options) *Pool {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	return &Pool{
		process:     process,
		concurrency: concurrency,
		chunkSize:   chunkSize,
		onOutcome:   opts.OnOutcome,
		log:         log,
	}
}

// Concurrency returns the configured worker count.
func (p *Pool) Concurrency() int { return p.concurrency }

// ChunkSize returns the configured chunk size.
func (p *Pool) ChunkSize() int { return p.chunkSize }

type chunk struct {
	start int
	jobs  []models.ResizeJob
}

// Run processes every job and returns their outcomes indexed like jobs. It
// blocks until all jobs are terminal. Once ctx is done, jobs that have not
// started are recorded as failed with ctx.Err() instead of being run.
func (p *Pool) Run(ctx context.Context, jobs []models.ResizeJob) []models.Outcome {
	if len(jobs) == 0 {
		return nil
	}

	chunks := make(chan chunk)
	numChunks := (len(jobs) + p.chunkSize - 1) / p.chunkSize
	workers := min(p.concurrency, numChunks)

	outcomes := make([]models.Outcome, len(jobs))

	// Workers never return an error; failures are outcomes.
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for c := range chunks {
				for i, job := range c.jobs {
					var o models.Outcome
					if err := ctx.Err(); err != nil {
						o = models.Outcome{Job: job, Err: err}
					} else {
						o = p.runJob(job)
					}
					outcomes[c.start+i] = o
					p.report(o)
				}
			}
			return nil
		})
	}

	for start := 0; start < len(jobs); start += p.chunkSize {
		end := min(start+p.chunkSize, len(jobs))
		chunks <- chunk{start: start, jobs: jobs[start:end]}
	}
	close(chunks)

	_ = g.Wait()
	return outcomes
}

// runJob is the bulkhead: whatever happens inside process, including a
// panic, ends up in the returned Outcome.
func (p *Pool) runJob(job models.ResizeJob) (o models.Outcome) {
	start := time.Now()
	o.Job = job
	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("panic while processing %s: %v", job.SourcePath, r)
		}
		o.Duration = time.Since(start)
		if o.Err != nil {
			p.log.WithFields(logrus.Fields{
				"job_id": job.JobID,
				"source": job.SourcePath,
				"dest":   job.DestPath,
			}).WithError(o.Err).Error("resize job failed")
		}
	}()
	o.Err = p.process(job)
	return o
}

func (p *Pool) report(o models.Outcome) {
	if p.onOutcome == nil {
		return
	}
	p.hookMu.Lock()
	defer p.hookMu.Unlock()
	p.onOutcome(o)
}
