package future

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFuture(t *testing.T) {
	t.Run("resolve", func(t *testing.T) {
		f := New()
		require.False(t, f.IsDone())
		f.Resolve()
		require.True(t, f.IsDone())
		require.NoError(t, f.Await(time.Second))
		require.NoError(t, f.Err())
	})

	t.Run("fail", func(t *testing.T) {
		cause := errors.New("connection reset")
		f := New()
		require.NoError(t, f.Err())
		f.Fail(cause)
		require.ErrorIs(t, f.Await(time.Second), cause)
		require.ErrorIs(t, f.Err(), cause)
	})

	t.Run("first completion wins", func(t *testing.T) {
		f := New()
		f.Resolve()
		f.Fail(errors.New("too late"))
		require.NoError(t, f.Await(0))

		g := New()
		cause := errors.New("first")
		g.Fail(cause)
		g.Resolve()
		require.ErrorIs(t, g.Await(0), cause)
	})

	t.Run("timeout", func(t *testing.T) {
		f := New()
		start := time.Now()
		require.ErrorIs(t, f.Await(50*time.Millisecond), ErrTimeout)
		require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		require.ErrorIs(t, f.Await(0), ErrTimeout)
	})

	t.Run("resolved from another goroutine", func(t *testing.T) {
		f := New()
		go func() {
			time.Sleep(10 * time.Millisecond)
			f.Resolve()
		}()

		require.NoError(t, f.Await(time.Second))
	})

	t.Run("many waiters", func(t *testing.T) {
		f := New()
		var wg sync.WaitGroup
		errs := make([]error, 10)

		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = f.Await(time.Second)
			}()
		}

		f.Resolve()
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
	})
}
