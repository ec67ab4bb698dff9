// Package queue is an at least once job queue on top of sqlite or libsql.
// Claimed jobs are leased, a job whose lease runs out before it is completed
// or failed is handed out again.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"supplierbot/internal/components/assert"
	"supplierbot/internal/components/telemetry"
	"time"

	"github.com/google/uuid"
)

const (
	report_queue_enqueue = "queue.enqueue"
	report_queue_claim   = "queue.claim"
	report_queue_finish  = "queue.finish"
	report_queue_requeue = "queue.requeue-expired"
)

type Status string

const (
	STATUS_QUEUED  Status = "queued"
	STATUS_RUNNING Status = "running"
	STATUS_DONE    Status = "done"
	STATUS_FAILED  Status = "failed"
)

// ErrNotRunning is returned when completing or failing a job that is not
// claimed anymore, usually because its lease expired and it was requeued.
var ErrNotRunning = errors.New("job is not running")

var ErrNotFound = errors.New("job not found")

type Options struct {
	// Lease is how long a claimed job stays invisible to other workers,
	// defaults to 15 minutes.
	Lease time.Duration
	// MaxAttempts is how many times a job is handed out before it is failed
	// for good, defaults to 3.
	MaxAttempts int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Delivery is a claimed job.
type Delivery struct {
	ID      string
	Queue   string
	Payload []byte
	// Attempt starts at 1.
	Attempt int
}

// Job is the stored state of a job.
type Job struct {
	ID         string
	Queue      string
	Payload    []byte
	Status     Status
	Attempts   int
	EnqueuedAt time.Time
	UpdatedAt  time.Time
	Result     []byte
	Error      string
}

type Queue struct {
	db   *sql.DB
	opts Options
	tel  telemetry.API
}

func New(db *sql.DB, opts Options, tel telemetry.API) Queue {
	assert.NotNil(db)
	assert.NotNil(tel)
	if opts.Lease <= 0 {
		opts.Lease = 15 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return Queue{
		db:   db,
		opts: opts,
		tel:  telemetry.NewScopedAPI("queue", tel),
	}
}

func (q Queue) now() int64 {
	return q.opts.Now().UnixMilli()
}

// Enqueue stores a new job and returns its id.
func (q Queue) Enqueue(ctx context.Context, queue string, payload []byte) (string, error) {
	if queue == "" {
		return "", fmt.Errorf("enqueue: empty queue name")
	}
	id := uuid.NewString()
	now := q.now()
	_, err := q.db.ExecContext(
		ctx,
		`insert into job(id, queue, payload, status, attempts, enqueued_at, updated_at)
		values (?, ?, ?, ?, 0, ?, ?)`,
		id, queue, payload, STATUS_QUEUED, now, now,
	)
	if err != nil {
		q.tel.ReportBroken(report_queue_enqueue, err, queue)
		return "", err
	}
	q.tel.ReportDebug(report_queue_enqueue, id, queue)
	return id, nil
}

// Claim leases the oldest queued job of any of the given queues. It returns
// a nil delivery when there is nothing to do.
func (q Queue) Claim(ctx context.Context, queues ...string) (*Delivery, error) {
	if len(queues) == 0 {
		return nil, fmt.Errorf("claim: no queues given")
	}

	now := q.now()
	args := []any{STATUS_RUNNING, now + q.opts.Lease.Milliseconds(), now, STATUS_QUEUED}
	for _, name := range queues {
		args = append(args, name)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(queues)), ", ")

	row := q.db.QueryRowContext(
		ctx,
		`update job set status = ?, attempts = attempts + 1, lease_until = ?, updated_at = ?
		where id = (
			select id from job
			where status = ? and queue in (`+placeholders+`)
			order by enqueued_at, rowid
			limit 1
		)
		returning id, queue, payload, attempts`,
		args...,
	)

	var d Delivery
	err := row.Scan(&d.ID, &d.Queue, &d.Payload, &d.Attempt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		q.tel.ReportBroken(report_queue_claim, err, queues)
		return nil, err
	}
	q.tel.ReportDebug(report_queue_claim, d.ID, d.Queue, d.Attempt)
	return &d, nil
}

func (q Queue) finish(ctx context.Context, id string, status Status, result []byte, reason string) error {
	res, err := q.db.ExecContext(
		ctx,
		`update job set status = ?, result = ?, error = ?, lease_until = null, updated_at = ?
		where id = ? and status = ?`,
		status, result, reason, q.now(), id, STATUS_RUNNING,
	)
	if err != nil {
		q.tel.ReportBroken(report_queue_finish, err, id, status)
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	return nil
}

// Complete marks a claimed job as done with its result.
func (q Queue) Complete(ctx context.Context, id string, result []byte) error {
	return q.finish(ctx, id, STATUS_DONE, result, "")
}

// Fail records reason for a claimed job. When retry is set and the job has
// attempts left it is queued again, otherwise it is failed for good. It
// returns the status the job ended up in.
func (q Queue) Fail(ctx context.Context, id string, reason string, retry bool) (Status, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return "", err
	}
	status := STATUS_FAILED
	if retry && job.Attempts < q.opts.MaxAttempts {
		status = STATUS_QUEUED
	}
	return status, q.finish(ctx, id, status, nil, reason)
}

// RequeueExpired hands jobs whose lease ran out back to the queue, or fails
// them when they are out of attempts. It returns the amount of jobs touched.
func (q Queue) RequeueExpired(ctx context.Context) (int64, error) {
	now := q.now()
	res, err := q.db.ExecContext(
		ctx,
		`update job set
			status = case when attempts >= ? then ? else ? end,
			error = 'lease expired',
			lease_until = null,
			updated_at = ?
		where status = ? and lease_until < ?`,
		q.opts.MaxAttempts, STATUS_FAILED, STATUS_QUEUED, now, STATUS_RUNNING, now,
	)
	if err != nil {
		q.tel.ReportBroken(report_queue_requeue, err)
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		q.tel.ReportWarning(report_queue_requeue, fmt.Errorf("%d jobs outlived their lease", affected))
	}
	return affected, nil
}

func (q Queue) Get(ctx context.Context, id string) (Job, error) {
	row := q.db.QueryRowContext(
		ctx,
		`select id, queue, payload, status, attempts, enqueued_at, updated_at, result, error
		from job where id = ?`,
		id,
	)

	var job Job
	var enqueuedAt, updatedAt int64
	var reason sql.NullString
	err := row.Scan(
		&job.ID,
		&job.Queue,
		&job.Payload,
		&job.Status,
		&job.Attempts,
		&enqueuedAt,
		&updatedAt,
		&job.Result,
		&reason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Job{}, err
	}
	job.EnqueuedAt = time.UnixMilli(enqueuedAt)
	job.UpdatedAt = time.UnixMilli(updatedAt)
	job.Error = reason.String
	return job, nil
}

// Counts returns the amount of jobs per status.
func (q Queue) Counts(ctx context.Context) (map[Status]int64, error) {
	rows, err := q.db.QueryContext(ctx, `select status, count(*) from job group by status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Status]int64{}
	for rows.Next() {
		var status Status
		var count int64
		err = rows.Scan(&status, &count)
		if err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
