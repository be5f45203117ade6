package groutine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_RunsJobsInOrder(t *testing.T) {
	exec := NewExecutor("test-exec", 0)
	require.NoError(t, exec.Start(context.Background()))

	var mu sync.Mutex
	var got []int
	for i := 0; i < 20; i++ {
		i := i
		require.True(t, exec.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	exec.Stop()

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got, "jobs MUST run once each, in posting order")
	assert.Equal(t, uint64(20), exec.Posted())
	assert.Zero(t, exec.Dropped())
}

func TestExecutor_SingleGoroutine(t *testing.T) {
	exec := NewExecutor("single", 8)
	require.NoError(t, exec.Start(context.Background()))
	defer exec.Stop()

	var running atomic.Int32
	var overlap atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		exec.Post(func() {
			defer wg.Done()
			if running.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		})
	}
	wg.Wait()
	assert.False(t, overlap.Load(), "jobs MUST NOT run concurrently")
}

func TestExecutor_PanicIsRecovered(t *testing.T) {
	exec := NewExecutor("panicky", 4)
	var recovered atomic.Value
	exec.OnPanic = func(name string, r any) { recovered.Store(name) }
	require.NoError(t, exec.Start(context.Background()))

	done := make(chan struct{})
	exec.Post(func() { panic("boom") })
	exec.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("executor MUST keep running after a job panics")
	}
	exec.Stop()
	assert.Equal(t, "panicky", recovered.Load(), "OnPanic MUST receive the worker goroutine name")
}

func TestExecutor_Lifecycle(t *testing.T) {
	exec := NewExecutor("lifecycle", 4)
	exec.Stop()
	assert.False(t, exec.Post(func() {}), "Post after Stop MUST be rejected")

	exec = NewExecutor("twice", 4)
	require.NoError(t, exec.Start(context.Background()))
	assert.Error(t, exec.Start(context.Background()), "second Start MUST fail")
	exec.Stop()
	exec.Stop()
}

func TestExecutor_GoroutineName(t *testing.T) {
	names := make(chan string, 1)
	Go(context.Background(), "named-worker", func(ctx context.Context) {
		names <- GetName(ctx)
	})

	select {
	case name := <-names:
		assert.Equal(t, "named-worker", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not start")
	}
	assert.Empty(t, GetName(context.Background()))
}
