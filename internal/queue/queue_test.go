package queue

import (
	"context"
	"errors"
	"path/filepath"
	"supplierbot/internal/components/telemetry"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (c *testClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

func setup(t testing.TB, opts Options) (Queue, *testClock, *telemetry.RecordingAPI) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts.Now = clock.Now
	tel := &telemetry.RecordingAPI{}
	return New(db, opts, tel), clock, tel
}

func TestEnqueueClaimComplete(t *testing.T) {
	q, clock, _ := setup(t, Options{})
	ctx := context.Background()

	first, err := q.Enqueue(ctx, "scraping", []byte(`{"n":1}`))
	require.NoError(t, err)
	clock.Advance(time.Millisecond)
	second, err := q.Enqueue(ctx, "pedido", []byte(`{"n":2}`))
	require.NoError(t, err)
	clock.Advance(time.Millisecond)
	_, err = q.Enqueue(ctx, "other", []byte(`{"n":3}`))
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	d, err := q.Claim(ctx, "scraping", "pedido")
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, first, d.ID)
	require.Equal(t, "scraping", d.Queue)
	require.Equal(t, `{"n":1}`, string(d.Payload))
	require.Equal(t, 1, d.Attempt)

	d, err = q.Claim(ctx, "scraping", "pedido")
	require.NoError(t, err)
	require.Equal(t, second, d.ID)

	d, err = q.Claim(ctx, "scraping", "pedido")
	require.NoError(t, err)
	require.Nil(t, d)

	require.NoError(t, q.Complete(ctx, first, []byte(`{"ok":true}`)))
	job, err := q.Get(ctx, first)
	require.NoError(t, err)
	require.Equal(t, STATUS_DONE, job.Status)
	require.Equal(t, `{"ok":true}`, string(job.Result))
	require.Equal(t, 1, job.Attempts)

	err = q.Complete(ctx, first, nil)
	require.True(t, errors.Is(err, ErrNotRunning))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, map[Status]int64{
		STATUS_DONE:    1,
		STATUS_RUNNING: 1,
		STATUS_QUEUED:  1,
	}, counts)
}

func TestFailRetries(t *testing.T) {
	q, _, _ := setup(t, Options{MaxAttempts: 2})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "scraping", []byte(`{}`))
	require.NoError(t, err)

	d, err := q.Claim(ctx, "scraping")
	require.NoError(t, err)
	status, err := q.Fail(ctx, d.ID, "network error", true)
	require.NoError(t, err)
	require.Equal(t, STATUS_QUEUED, status)

	d, err = q.Claim(ctx, "scraping")
	require.NoError(t, err)
	require.Equal(t, id, d.ID)
	require.Equal(t, 2, d.Attempt)
	status, err = q.Fail(ctx, d.ID, "network error again", true)
	require.NoError(t, err)
	require.Equal(t, STATUS_FAILED, status)

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, STATUS_FAILED, job.Status)
	require.Equal(t, "network error again", job.Error)

	d, err = q.Claim(ctx, "scraping")
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestFailWithoutRetry(t *testing.T) {
	q, _, _ := setup(t, Options{})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "pedido", []byte(`{}`))
	require.NoError(t, err)
	_, err = q.Claim(ctx, "pedido")
	require.NoError(t, err)

	status, err := q.Fail(ctx, id, "invalid payload: missing password", false)
	require.NoError(t, err)
	require.Equal(t, STATUS_FAILED, status)
}

func TestRequeueExpired(t *testing.T) {
	q, clock, tel := setup(t, Options{Lease: time.Minute, MaxAttempts: 2})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "scraping", []byte(`{}`))
	require.NoError(t, err)
	_, err = q.Claim(ctx, "scraping")
	require.NoError(t, err)

	n, err := q.RequeueExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	clock.Advance(2 * time.Minute)
	n, err = q.RequeueExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.True(t, tel.Has(telemetry.REPORT_WARNING, report_queue_requeue))

	// the stale worker can no longer complete it
	err = q.Complete(ctx, id, nil)
	require.ErrorIs(t, err, ErrNotRunning)

	d, err := q.Claim(ctx, "scraping")
	require.NoError(t, err)
	require.Equal(t, id, d.ID)
	require.Equal(t, 2, d.Attempt)

	clock.Advance(2 * time.Minute)
	n, err = q.RequeueExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, STATUS_FAILED, job.Status)
	require.Equal(t, "lease expired", job.Error)
}

func TestGetUnknown(t *testing.T) {
	q, _, _ := setup(t, Options{})
	_, err := q.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "queue.db")
	db, err := Open("sqlite://" + path)
	require.NoError(t, err)
	q := New(db, Options{}, &telemetry.RecordingAPI{})
	_, err = q.Enqueue(context.Background(), "scraping", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	counts, err := New(db, Options{}, &telemetry.RecordingAPI{}).Counts(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, counts[STATUS_QUEUED])
}

func TestOpenRejectsRedis(t *testing.T) {
	_, err := Open("redis://:hunter2@localhost:6379/0")
	require.ErrorContains(t, err, "redis is not supported")
	require.NotContains(t, err.Error(), "hunter2")
}

func TestWithAuthToken(t *testing.T) {
	cases := []struct {
		dsn      string
		token    string
		expected string
	}{
		{dsn: "libsql://queue.example.turso.io", token: "abc", expected: "libsql://queue.example.turso.io?authToken=abc"},
		{dsn: "https://queue.example?tls=1", token: "abc", expected: "https://queue.example?authToken=abc&tls=1"},
		{dsn: "libsql://queue.example.turso.io", token: "", expected: "libsql://queue.example.turso.io"},
		{dsn: "data/queue.db", token: "abc", expected: "data/queue.db"},
	}
	for _, test := range cases {
		dsn, err := WithAuthToken(test.dsn, test.token)
		require.NoError(t, err)
		require.Equal(t, test.expected, dsn)
	}
}
