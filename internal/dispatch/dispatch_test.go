package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestPostRunsInOrder(t *testing.T) {
	l, _ := startLoop(t)

	var got []int
	for i := 0; i < 10; i++ {
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() {}))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	assert.Equal(t, uint64(11), l.Processed())
}

func TestPostFromManyGoroutines(t *testing.T) {
	l, _ := startLoop(t)

	counter := 0
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var final int
	require.NoError(t, l.Do(context.Background(), func() { final = counter }))
	assert.Equal(t, 800, final)
}

func TestRunTwice(t *testing.T) {
	l, _ := startLoop(t)
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.ErrorIs(t, l.Run(context.Background()), ErrRunning)
}

func TestPostAfterStop(t *testing.T) {
	l, cancel := startLoop(t)
	cancel()
	<-l.Done()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), ErrStopped)
}

func TestAfterFuncRunsOnLoop(t *testing.T) {
	l, _ := startLoop(t)

	// count is only touched on the loop goroutine
	count := 0
	fired := make(chan struct{})
	l.AfterFunc(5*time.Millisecond, func() {
		count++
		close(fired)
	})
	for n := 0; n < 50; n++ {
		l.Post(func() { count++ })
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	var got int
	require.NoError(t, l.Do(context.Background(), func() { got = count }))
	assert.Equal(t, 51, got)
}

func TestAfterFuncStop(t *testing.T) {
	l, _ := startLoop(t)

	fired := false
	timer := l.AfterFunc(time.Hour, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.False(t, fired)
}
