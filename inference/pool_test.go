package inference

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubFactory() (*Session, error) {
	return &Session{}, nil
}

func TestPoolAcquireRelease(t *testing.T) {
	pool, err := NewSessionPool(stubFactory, 2)
	require.NoError(t, err)
	defer pool.Destroy()

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)

	m := pool.Metrics()
	assert.Equal(t, 2, m.PoolSize)
	assert.Equal(t, 1, m.InUse)
	assert.Equal(t, int64(1), m.TotalAcquired)

	pool.Release(s)
	m = pool.Metrics()
	assert.Equal(t, 0, m.InUse)
	assert.Equal(t, int64(1), m.TotalReleased)
}

func TestPoolReleaseAfterDestroy(t *testing.T) {
	pool, err := NewSessionPool(stubFactory, 2)
	require.NoError(t, err)

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	// Destroy while a session is checked out; returning it afterwards must
	// drop it, not panic on the closed channel.
	pool.Destroy()
	pool.Release(s)

	_, err = pool.Acquire(context.Background())
	require.Error(t, err)
}

func TestPoolConcurrentReleaseAndDestroy(t *testing.T) {
	pool, err := NewSessionPool(stubFactory, 4)
	require.NoError(t, err)

	sessions := make([]*Session, 0, 4)
	for i := 0; i < 4; i++ {
		s, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		sessions = append(sessions, s)
	}

	var wg sync.WaitGroup
	wg.Add(len(sessions) + 1)
	for _, s := range sessions {
		go func(s *Session) {
			defer wg.Done()
			pool.Release(s)
		}(s)
	}
	go func() {
		defer wg.Done()
		pool.Destroy()
	}()
	wg.Wait()
}

func TestPoolDropsExpiredSessions(t *testing.T) {
	pool, err := NewSessionPool(stubFactory, 1)
	require.NoError(t, err)
	defer pool.Destroy()

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	s.expired.Store(true)
	pool.Release(s)

	// The expired session was dropped, so nothing is available until the
	// health check replenishes.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx)
	require.Error(t, err)
}
