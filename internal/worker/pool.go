package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"supplierbot/internal/components/assert"
	"supplierbot/internal/components/chrono"
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/queue"
	"supplierbot/internal/supplier"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	report_pool_claim   = "pool.claim"
	report_pool_process = "pool.process"
	report_pool_sweep   = "pool.sweep"
)

// Queue is the part of queue.Queue the pool needs.
type Queue interface {
	Claim(ctx context.Context, queues ...string) (*queue.Delivery, error)
	Complete(ctx context.Context, id string, result []byte) error
	Fail(ctx context.Context, id string, reason string, retry bool) (queue.Status, error)
	RequeueExpired(ctx context.Context) (int64, error)
	Counts(ctx context.Context) (map[queue.Status]int64, error)
}

// Handler runs a single job.
type Handler interface {
	Handle(ctx context.Context, job Job) (JobResult, error)
}

type PoolOptions struct {
	Workers int
	Queues  []string
	// ScrapeQueue and OrderQueue decide the kind of jobs whose payload does
	// not name one.
	ScrapeQueue  string
	OrderQueue   string
	JobTimeout   time.Duration
	PollInterval time.Duration
	// SweepSpec is the cron spec of the expired lease sweep, defaults to
	// every minute.
	SweepSpec string
}

type Pool struct {
	queue   Queue
	handler Handler
	opts    PoolOptions
	tel     telemetry.API
}

func NewPool(q Queue, handler Handler, opts PoolOptions, tel telemetry.API) Pool {
	assert.NotNil(q)
	assert.NotNil(handler)
	assert.NotNil(tel)
	assert.Positive(opts.Workers)
	if len(opts.Queues) == 0 {
		panic("worker pool: no queues to consume")
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.SweepSpec == "" {
		opts.SweepSpec = "@every 1m"
	}
	return Pool{
		queue:   q,
		handler: handler,
		opts:    opts,
		tel:     telemetry.NewScopedAPI("worker_pool", tel),
	}
}

// Run consumes jobs until ctx is canceled. Every worker processes one job at
// a time, each with its own session.
func (p Pool) Run(ctx context.Context) error {
	cron := chrono.NewStandardCron(p.tel)
	defer cron.Stop()
	err := cron.Cron(p.opts.SweepSpec, func() {
		p.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		group.Go(func() error {
			p.work(ctx)
			return nil
		})
	}
	return group.Wait()
}

// Sweep requeues jobs whose lease expired and reports queue sizes.
func (p Pool) Sweep(ctx context.Context) {
	_, err := p.queue.RequeueExpired(ctx)
	if err != nil {
		p.tel.ReportBroken(report_pool_sweep, err)
		return
	}
	counts, err := p.queue.Counts(ctx)
	if err != nil {
		p.tel.ReportBroken(report_pool_sweep, err)
		return
	}
	for status, n := range counts {
		p.tel.ReportCount(fmt.Sprintf("jobs.%s", status), n)
	}
}

func (p Pool) work(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := p.Next(ctx)
		if err != nil {
			p.tel.ReportBroken(report_pool_claim, err)
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.opts.PollInterval):
		}
	}
}

func (p Pool) fallbackKind(queueName string) Kind {
	switch queueName {
	case p.opts.OrderQueue:
		return KIND_ORDER
	case p.opts.ScrapeQueue:
		return KIND_SCRAPE
	}
	return ""
}

// Retryable is false for errors that will fail the same way however many
// times the job is attempted.
func Retryable(err error) bool {
	return !errors.Is(err, supplier.ErrInvalidPayload)
}

// Next claims and processes a single job, processed is false when no job was
// queued.
func (p Pool) Next(ctx context.Context) (processed bool, err error) {
	delivery, err := p.queue.Claim(ctx, p.opts.Queues...)
	if err != nil || delivery == nil {
		return false, err
	}

	// the outcome is recorded even when the pool is shutting down
	bookkeeping := context.WithoutCancel(ctx)

	job, err := DecodeJob(delivery.Payload, p.fallbackKind(delivery.Queue))
	if err != nil {
		_, err = p.queue.Fail(bookkeeping, delivery.ID, err.Error(), false)
		return true, err
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.opts.JobTimeout)
	defer cancel()
	result, err := p.handler.Handle(jobCtx, job)
	if err != nil {
		reason := err.Error()
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("job exceeded its time budget of %s: %s", p.opts.JobTimeout, reason)
		}
		status, failErr := p.queue.Fail(bookkeeping, delivery.ID, reason, Retryable(err))
		p.tel.ReportWarning(report_pool_process, err, delivery.ID, delivery.Attempt, status)
		return true, failErr
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		p.tel.ReportBroken(report_pool_process, fmt.Errorf("json marshal: %w", err), delivery.ID)
		return true, err
	}
	p.tel.ReportDebug(report_pool_process, delivery.ID, job.Kind, "done")
	return true, p.queue.Complete(bookkeeping, delivery.ID, encoded)
}
