package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// blockWorker occupies the only worker until the returned func is called.
func blockWorker(t *testing.T, s *PoolScheduler) func() {
	started := make(chan struct{})
	release := make(chan struct{})
	s.Submit(100, TaskFunc{Label: "blocker", Fn: func(context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	}})
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("blocker did not start")
	}
	return func() { close(release) }
}

func TestSchedulerRunsHighestPriorityFirst(t *testing.T) {
	s := NewPoolScheduler(1)
	defer s.Close()
	release := blockWorker(t, s)

	var mu sync.Mutex
	var order []string
	record := func(name string) Task {
		return TaskFunc{Label: name, Fn: func(context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}}
	}
	futures := []*Future{
		s.Submit(1, record("low")),
		s.Submit(10, record("high")),
		s.Submit(5, record("mid")),
		s.Submit(10, record("high-later")),
	}
	require.Equal(t, 4, s.Pending())
	release()

	for _, f := range futures {
		value, err := f.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, f.Name(), value)
	}
	require.Equal(t, []string{"high", "high-later", "mid", "low"}, order)
	require.Zero(t, s.Pending())
}

func TestCancelledTaskIsDropped(t *testing.T) {
	s := NewPoolScheduler(1)
	defer s.Close()
	release := blockWorker(t, s)

	ran := false
	f := s.Submit(1, TaskFunc{Label: "doomed", Fn: func(context.Context) (any, error) {
		ran = true
		return nil, nil
	}})
	f.Cancel()
	release()

	_, err := f.Wait(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
	require.False(t, ran)
}

func TestCancelStopsRunningTask(t *testing.T) {
	s := NewPoolScheduler(1)
	defer s.Close()
	started := make(chan struct{})
	f := s.Submit(1, TaskFunc{Label: "long", Fn: func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	<-started
	f.Cancel()
	_, err := f.Wait(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}

func TestPanicBecomesError(t *testing.T) {
	s := NewPoolScheduler(2)
	defer s.Close()
	boom := errors.New("boom")

	f := s.Submit(0, TaskFunc{Label: "panics", Fn: func(context.Context) (any, error) {
		panic(boom)
	}})
	_, err := f.Wait(context.Background())
	require.ErrorIs(t, err, boom)

	f = s.Submit(0, TaskFunc{Label: "panics with text", Fn: func(context.Context) (any, error) {
		panic("no error value")
	}})
	_, err = f.Wait(context.Background())
	require.ErrorContains(t, err, "no error value")

	f = s.Submit(0, TaskFunc{Label: "fine", Fn: func(context.Context) (any, error) {
		return 42, nil
	}})
	value, err := f.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, value)
}

func TestSubmitAfterClose(t *testing.T) {
	s := NewPoolScheduler(1)
	s.Close()
	f := s.Submit(0, TaskFunc{Label: "late", Fn: func(context.Context) (any, error) {
		return nil, nil
	}})
	_, err := f.Wait(context.Background())
	require.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestCloseWaitsForQueuedTasks(t *testing.T) {
	s := NewPoolScheduler(2)
	var mu sync.Mutex
	done := 0
	for i := 0; i < 20; i++ {
		s.Go(i, "count", func(context.Context) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			done++
			mu.Unlock()
			return nil
		})
	}
	s.Close()
	require.Equal(t, 20, done)
}

func TestEveryFutureFinishesWhenCloseRacesSubmit(t *testing.T) {
	for round := 0; round < 20; round++ {
		s := NewPoolScheduler(2)
		var wg sync.WaitGroup
		futures := make(chan *Future, 400)
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					futures <- s.Submit(i, TaskFunc{Label: "racing", Fn: func(context.Context) (any, error) {
						return nil, nil
					}})
				}
			}()
		}
		s.Close()
		wg.Wait()
		close(futures)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		for f := range futures {
			_, err := f.Wait(ctx)
			if err != nil {
				require.ErrorIs(t, err, ErrSchedulerClosed, "round %d", round)
			}
		}
		cancel()
		require.Zero(t, s.Pending())
	}
}

func TestWaitHonoursContext(t *testing.T) {
	s := NewPoolScheduler(1)
	defer s.Close()
	release := blockWorker(t, s)
	defer release()

	f := s.Submit(0, TaskFunc{Label: "queued", Fn: func(context.Context) (any, error) {
		return nil, nil
	}})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotEqual(t, f.ID(), s.Submit(0, TaskFunc{Label: "other", Fn: func(context.Context) (any, error) { return nil, nil }}).ID())
}
