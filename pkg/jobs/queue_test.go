package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, QueueConfig{Workers: 2})

	q.Start(context.Background())
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "audit"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Stop(ctx)

	assert.Equal(t, int32(10), atomic.LoadInt32(&processed))
}

func TestQueueRetriesThenReportsExhaustion(t *testing.T) {
	var attempts int32
	var mu sync.Mutex
	var exhausted []Job
	done := make(chan struct{})

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("nope")
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnExhausted: func(job Job, err error) {
			mu.Lock()
			exhausted = append(exhausted, job)
			mu.Unlock()
			close(done)
		},
	})
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "j1", Type: "notify"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never reported as exhausted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Stop(ctx)

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, exhausted, 1)
	assert.Equal(t, 3, exhausted[0].Attempt)
}

func TestQueueRejectsWhenNotRunning(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "early"})
	require.ErrorIs(t, err, ErrQueueClosed)

	q.Start(context.Background())
	q.Stop(context.Background())
	err = q.Enqueue(Job{ID: "late"})
	require.ErrorIs(t, err, ErrQueueClosed)
}
