package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/civic-workflow-api/internal/models"
	"github.com/noah-isme/civic-workflow-api/pkg/jobs"
)

func TestSideEffectsRunsInlineDetachedFromCancellation(t *testing.T) {
	effects := NewSideEffects(zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	ran := false
	effects.Go(ctx, "probe", func(ctx context.Context) error {
		ran = true
		seen = ctx.Err()
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	assert.True(t, ran)
	assert.NoError(t, seen)
}

func TestSideEffectsLogsAndCountsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	metrics := NewMetricsService()
	effects := NewSideEffects(zap.New(core), metrics)

	effects.Go(context.Background(), "notify.request_created", func(ctx context.Context) error {
		return &DispatchFailures{ByRecipient: map[string]error{"u-2": errors.New("boom"), "u-1": errors.New("boom")}}
	})

	entries := logs.FilterMessage("side effect failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "notify.request_created", fields["kind"])
	assert.Equal(t, []interface{}{"u-1", "u-2"}, fields["recipients"])
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.sideEffectFailed.WithLabelValues("notify.request_created")))
}

func TestSideEffectsRecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	effects := NewSideEffects(zap.New(core), nil)

	assert.NotPanics(t, func() {
		effects.Go(context.Background(), "audit.create", func(ctx context.Context) error {
			panic("nil map")
		})
	})
	require.Equal(t, 1, logs.FilterMessage("side effect failed").Len())
}

func TestSideEffectsQueueMode(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	effects := NewSideEffects(zap.New(core), nil)
	queue := jobs.NewQueue("side-effects", effects.Handle, effects.QueueConfig(1, 0, time.Millisecond))
	queue.Start(context.Background())
	effects.UseQueue(queue)

	var (
		mu   sync.Mutex
		done []string
	)
	effects.Go(context.Background(), "ok", func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		done = append(done, "ok")
		return nil
	})
	effects.Go(context.Background(), "broken", func(ctx context.Context) error {
		return errors.New("redis down")
	})

	stop, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	queue.Stop(stop)

	mu.Lock()
	assert.Equal(t, []string{"ok"}, done)
	mu.Unlock()
	failed := logs.FilterMessage("side effect failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].ContextMap()["kind"])

	// A stopped queue falls back to inline execution.
	ran := false
	effects.Go(context.Background(), "late", func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.True(t, ran)
}

func TestSideEffectsQueueRetriesOnlyUndeliveredRecipients(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	effects := NewSideEffects(zap.New(core), nil)
	queue := jobs.NewQueue("side-effects", effects.Handle, effects.QueueConfig(1, 2, time.Millisecond))
	queue.Start(context.Background())
	effects.UseQueue(queue)

	attempts := map[string]int{}
	store := &notificationStoreStub{
		failFor:  map[string]error{"u-3": errors.New("insert failed")},
		onCreate: func(n *models.Notification) { attempts[n.UserID]++ },
	}
	directory := directoryStub{"Parks": {"u-1", "u-2", "u-3"}}
	dispatcher := NewNotificationDispatcher(store, directory, nil, nil, zap.NewNop(), 1)

	actor := member("u-1", "Parks")
	request := &models.Request{ID: "r-1", Title: "Bench", Department: "Parks"}
	effects.Go(context.Background(), "notify.request_created", func(ctx context.Context) error {
		return dispatcher.RequestCreated(ctx, actor, request).Err()
	})

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return attempts["u-3"] == 3
	}, 2*time.Second, 5*time.Millisecond)

	stop, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	queue.Stop(stop)

	assert.Len(t, store.forRecipient("u-2"), 1)
	assert.Empty(t, store.forRecipient("u-3"))
	store.mu.Lock()
	assert.Equal(t, 1, attempts["u-2"])
	store.mu.Unlock()

	failed := logs.FilterMessage("side effect failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, []interface{}{"u-3"}, failed[0].ContextMap()["recipients"])
}
