// Package consumer runs analysis jobs pulled from a queue with bounded
// concurrency.
//
// Settlement rules:
//   - success: ack
//   - unrecoverable failure: ack, since retrying cannot help
//   - any other failure: reject, so the broker retries the job later
//
// A broker failure (receive, ack or reject) stops the consumer: intake ends,
// in-flight jobs finish and Run returns the error so the process can exit and
// be restarted by its supervisor.
package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/observability"
	"github.com/matzehuels/pkganalyzer/pkg/queue"
)

// DefaultConcurrency is the number of jobs processed at once.
const DefaultConcurrency = 2

// settleTimeout bounds one ack or reject.
const settleTimeout = 10 * time.Second

// Handler processes one job.
type Handler func(ctx context.Context, job queue.Job) error

// Consumer pulls jobs from a broker and runs them.
type Consumer struct {
	Broker  queue.Broker
	Handler Handler
	// Concurrency caps the jobs in flight. Defaults to [DefaultConcurrency].
	Concurrency int
	// DrainTimeout bounds the wait for in-flight jobs once intake stopped;
	// jobs still running afterwards are cancelled. Zero waits forever.
	DrainTimeout time.Duration
	Logger       *log.Logger
}

// Run consumes until ctx is cancelled or the broker fails. It returns
// ctx.Err() after a clean shutdown and the broker error otherwise.
func (c *Consumer) Run(ctx context.Context) error {
	if c.Broker == nil || c.Handler == nil {
		return perrors.New(perrors.ErrCodeInvalidConfig, "consumer needs a broker and a handler")
	}
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger := c.logger()
	logger.Debug("consumer started", "concurrency", concurrency)

	intake, stopIntake := context.WithCancel(ctx)
	defer stopIntake()
	// Jobs outlive intake so they can finish during a drain.
	jobs, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	var (
		sem     = semaphore.NewWeighted(int64(concurrency))
		wg      sync.WaitGroup
		errOnce sync.Once
		fatal   error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			fatal = err
			stopIntake()
		})
	}

	for intake.Err() == nil {
		if err := sem.Acquire(intake, 1); err != nil {
			break
		}
		d, err := c.Broker.Receive(intake)
		if err != nil {
			sem.Release(1)
			if intake.Err() == nil {
				fail(err)
			}
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if err := c.process(jobs, d); err != nil {
				fail(err)
			}
		}()
	}

	c.drain(&wg, cancelJobs)

	if fatal != nil {
		logger.Error("consumer stopped", "error", fatal)
		return fatal
	}
	logger.Info("consumer stopped")
	return ctx.Err()
}

func (c *Consumer) drain(wg *sync.WaitGroup, cancelJobs context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	if c.DrainTimeout <= 0 {
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(c.DrainTimeout):
		c.logger().Warn("drain timeout, cancelling in-flight jobs", "timeout", c.DrainTimeout)
		cancelJobs()
		<-done
	}
}

// process runs one delivery and settles it. Only settlement errors are
// returned.
func (c *Consumer) process(ctx context.Context, d *queue.Delivery) error {
	name := d.Job.Name
	logger := c.logger().With("package", name, "delivery", d.ID, "attempt", d.Attempts+1)
	hooks := observability.Jobs()

	start := time.Now()
	hooks.OnJobStart(ctx, name)
	err := c.run(ctx, d.Job)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	var outcome string
	var settleErr error
	switch {
	case err == nil:
		outcome = observability.OutcomeAcked
		settleErr = c.Broker.Ack(settleCtx, d)
	case perrors.IsUnrecoverable(err):
		outcome = observability.OutcomeDropped
		logger.Warn("job failed permanently, dropping", "error", err)
		settleErr = c.Broker.Ack(settleCtx, d)
	default:
		outcome = observability.OutcomeRequeued
		logger.Error("job failed, requeueing", "error", err)
		settleErr = c.Broker.Reject(settleCtx, d)
	}
	hooks.OnJobComplete(ctx, name, outcome, time.Since(start), err)

	if settleErr != nil {
		return fmt.Errorf("settle %s: %w", d.ID, settleErr)
	}
	logger.Debug("job settled", "outcome", outcome, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// run calls the handler, turning a panic into an error.
func (c *Consumer) run(ctx context.Context, job queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.Handler(ctx, job)
}

func (c *Consumer) logger() *log.Logger {
	if c.Logger == nil {
		return log.Default()
	}
	return c.Logger
}
