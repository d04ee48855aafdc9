// Package ddns maintains a DNS zone's proxy endpoints by continuously
// evaluating a pool of candidate ip/port pairs against an external
// health-check service. It provides the candidate loading, concurrent
// probing, ranking and artifact-writing stages of the evaluation
// pipeline, plus the record-refresh workflow that consumes the
// resulting preferred shortlist.
//
// Typical responsibilities of this package include:
//
//   - loading candidate pairs from delimited or tabular sources,
//   - probing every candidate with a bounded worker pool,
//   - classifying each probe outcome without aborting the run,
//   - deriving the ranked and partitioned output lists,
//   - replacing failed zone records with preferred candidates.
//
// Usage overview:
//  1. Resolve a Source and load its candidates.
//  2. Construct a Checker and hand it to a Pool.
//  3. Run the pool, then Rank the outcomes and apply a
//     PreferredFilter.
//  4. Persist the partitions with the artifact writers.
package ddns

import (
	"context"
	"sync/atomic"

	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// DefaultWorkerCap bounds concurrent probes regardless of input size.
const DefaultWorkerCap = 50

// Pool fans candidates out across a bounded worker pool and collects
// one Outcome per submitted candidate, in completion order.
type Pool struct {
	client    ProbeClient
	workerCap int
	sink      *DiagnosticsSink
	logger    *logrus.Logger
	progress  bool
	completed atomic.Int64
}

// NewPool returns a Pool that probes through the given client with the
// default worker cap.
func NewPool(client ProbeClient) *Pool {
	return &Pool{
		client:    client,
		workerCap: DefaultWorkerCap,
	}
}

// SetWorkerCap sets the concurrency ceiling. Values below 1 run with a
// single worker. The effective worker count is further capped at the
// candidate count so a tiny input never over-provisions workers.
func (p *Pool) SetWorkerCap(n int) {
	p.workerCap = n
}

// WorkerCap returns the configured concurrency ceiling.
func (p *Pool) WorkerCap() int {
	return p.workerCap
}

// SetLogger attaches a logger for run milestones. A nil logger keeps
// the pool quiet.
func (p *Pool) SetLogger(l *logrus.Logger) {
	p.logger = l
}

// SetDiagnostics attaches the sink that records every outcome as it
// completes. A nil sink disables diagnostics.
func (p *Pool) SetDiagnostics(s *DiagnosticsSink) {
	p.sink = s
}

// SetProgress toggles the terminal progress bar.
func (p *Pool) SetProgress(enabled bool) {
	p.progress = enabled
}

// Completed returns the number of probes finished so far. It increases
// monotonically during Run and is safe to read from other goroutines.
func (p *Pool) Completed() int64 {
	return p.completed.Load()
}

// Run probes every candidate with at most min(WorkerCap, N) probes in
// flight and returns one Outcome per executed probe in completion
// order. One candidate's failure or timeout never blocks or cancels
// the others; there are no retries. Cancelling the context stops new
// submissions and drops queued-but-unstarted probes without an
// outcome, while in-flight probes run to completion or hit their own
// timeout.
func (p *Pool) Run(ctx context.Context, candidates []Candidate) []Outcome {
	if len(candidates) == 0 {
		return nil
	}

	workers := p.workerCap
	if workers < 1 {
		workers = 1
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	var bar *progressbar.ProgressBar
	if p.progress {
		bar = progressbar.Default(int64(len(candidates)), "checking proxies")
	}

	if p.logger != nil {
		p.logger.WithFields(logrus.Fields{
			"candidates": len(candidates),
			"workers":    workers,
		}).Info("starting probe run")
	}

	results := make(chan Outcome, len(candidates))
	wp := workerpool.New(workers)

	var skipped atomic.Int64
	submitted := 0
	for _, cand := range candidates {
		if ctx.Err() != nil {
			break
		}
		cand := cand // capture loop variable
		wp.Submit(func() {
			// Submission is non-blocking, so by the time a worker
			// picks this up the run may already be over. Queued
			// work that never started yields no outcome.
			if ctx.Err() != nil {
				skipped.Add(1)
				return
			}
			out := p.client.Check(ctx, cand)
			if p.sink != nil {
				p.sink.Record(out)
			}
			p.completed.Add(1)
			if bar != nil {
				_ = bar.Add(1)
			}
			results <- out
		})
		submitted++
	}

	// wait for all submitted probes to finish
	wp.StopWait()
	close(results)

	if n := skipped.Load() + int64(len(candidates)-submitted); n > 0 && p.logger != nil {
		p.logger.WithField("skipped", n).
			Warn("run interrupted; queued candidates were not probed")
	}

	outcomes := make([]Outcome, 0, submitted)
	succeeded := 0
	for out := range results {
		if out.Succeeded {
			succeeded++
		}
		outcomes = append(outcomes, out)
	}

	if p.logger != nil {
		p.logger.WithFields(logrus.Fields{
			"probed":    len(outcomes),
			"succeeded": succeeded,
		}).Info("probe run completed")
	}
	return outcomes
}
