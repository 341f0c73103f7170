package workerpool

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

func TestSubmitDedupesByKey(t *testing.T) {
	p := New[int](2)
	defer p.Close()

	var runs atomic.Int32
	release := make(chan struct{})
	task := func(ctx context.Context) (int, error) {
		runs.Add(1)
		<-release
		return 42, nil
	}

	// Ten concurrent submissions under one key before the first
	// resolves must share one future and one execution.
	futures := make([]*Future[int], 10)
	for i := range futures {
		futures[i] = p.Submit("probe:/usr/bin/python3", PriorityBack, task)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, f := range futures {
		got, ok := f.Wait(ctx)
		require.True(t, ok)
		assert.Equal(t, 42, got)
		assert.Same(t, futures[0], f)
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestCompletedKeyStaysCached(t *testing.T) {
	p := New[int](1)
	defer p.Close()

	var runs atomic.Int32
	task := func(ctx context.Context) (int, error) {
		runs.Add(1)
		return 7, nil
	}

	ctx := context.Background()
	f1 := p.Submit("k", PriorityBack, task)
	f1.Wait(ctx)
	f2 := p.Submit("k", PriorityBack, task)
	got, ok := f2.Wait(ctx)

	require.True(t, ok)
	assert.Equal(t, 7, got)
	assert.Equal(t, int32(1), runs.Load(), "completed key must not re-run")
}

func TestFailureResolvesToAbsenceAndRetries(t *testing.T) {
	p := New[int](1)
	defer p.Close()

	var runs atomic.Int32
	failing := func(ctx context.Context) (int, error) {
		runs.Add(1)
		return 0, errors.New("probe exploded")
	}

	ctx := context.Background()
	_, ok := p.Submit("k", PriorityBack, failing).Wait(ctx)
	assert.False(t, ok, "failure must surface as absence, not panic")

	// The key is vacated on failure, so a retry executes again.
	_, ok = p.Submit("k", PriorityBack, failing).Wait(ctx)
	assert.False(t, ok)
	assert.Equal(t, int32(2), runs.Load())
}

func TestFrontPriorityJumpsPendingQueue(t *testing.T) {
	p := New[string](1)
	defer p.Close()

	var mu sync.Mutex
	var order []string
	blocker := make(chan struct{})

	record := func(name string) TaskFunc[string] {
		return func(ctx context.Context) (string, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}
	}

	// Occupy the single worker so subsequent submissions stay queued.
	p.Submit("hold", PriorityBack, func(ctx context.Context) (string, error) {
		<-blocker
		return "", nil
	})
	b1 := p.Submit("b1", PriorityBack, record("b1"))
	b2 := p.Submit("b2", PriorityBack, record("b2"))
	f1 := p.Submit("f1", PriorityFront, record("f1"))
	close(blocker)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b1.Wait(ctx)
	b2.Wait(ctx)
	f1.Wait(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 3)
	assert.Equal(t, []string{"f1", "b1", "b2"}, order)
}

func TestPanicBecomesAbsence(t *testing.T) {
	p := New[int](1)
	defer p.Close()

	f := p.Submit("boom", PriorityBack, func(ctx context.Context) (int, error) {
		panic("bad probe")
	})
	_, ok := f.Wait(context.Background())
	assert.False(t, ok)
}

func TestCloseResolvesPendingToAbsence(t *testing.T) {
	p := New[int](1)

	blocker := make(chan struct{})
	p.Submit("hold", PriorityBack, func(ctx context.Context) (int, error) {
		<-blocker
		return 0, nil
	})
	pending := p.Submit("pending", PriorityBack, func(ctx context.Context) (int, error) {
		return 1, nil
	})

	// Release the in-flight task only after Close has started, so the
	// pending item is guaranteed to still be queued when it drains.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(blocker)
	}()
	p.Close()

	_, ok := pending.Wait(context.Background())
	assert.False(t, ok)
}
