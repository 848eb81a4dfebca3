package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
)

const (
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

// SessionPool holds pre-loaded sessions for one model. Acquire/Release make a
// session exclusive to a caller for the duration of one inference, which is
// what keeps individual Sessions single-threaded.
type SessionPool struct {
	sessions   chan *Session
	size       int
	factory    func() (*Session, error)
	mu         sync.Mutex
	closed     bool
	metrics    *PoolMetrics
	lastErrors []error
}

type PoolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

// MetricsSnapshot is the exported view served by the metrics endpoint.
type MetricsSnapshot struct {
	PoolSize        int   `json:"pool_size"`
	InUse           int   `json:"sessions_in_use"`
	TotalAcquired   int64 `json:"total_acquired"`
	TotalReleased   int64 `json:"total_released"`
	AcquireFailures int64 `json:"acquire_failures"`
}

// NewSessionPool eagerly loads size sessions via factory.
func NewSessionPool(factory func() (*Session, error), size int) (*SessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &SessionPool{
		sessions: make(chan *Session, size),
		size:     size,
		factory:  factory,
		metrics:  &PoolMetrics{},
	}

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	go pool.healthCheck()

	return pool, nil
}

func (p *SessionPool) Acquire(ctx context.Context) (*Session, error) {
	if p.closed {
		return nil, fmt.Errorf("pool is closed")
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	select {
	case session := <-p.sessions:
		if session == nil {
			// Channel closed by Destroy.
			return nil, fmt.Errorf("pool is closed")
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-time.After(AcquireTimeout):
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for available session")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a session to the pool. Sessions poisoned by an abandoned
// run are dropped instead; the health check replenishes the pool. The send
// happens under the pool lock so it cannot race Destroy closing the channel.
func (p *SessionPool) Release(session *Session) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	if session.Expired() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		session.Destroy()
		return
	}
	p.sessions <- session
}

func (p *SessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
	}
}

func (p *SessionPool) healthCheck() {
	ticker := time.NewTicker(HealthCheckPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if p.closed {
			return
		}

		p.mu.Lock()
		currentSize := len(p.sessions)
		p.mu.Unlock()

		if currentSize < p.size {
			p.replenishSessions(p.size - currentSize)
		}
	}
}

func (p *SessionPool) replenishSessions(count int) {
	for i := 0; i < count; i++ {
		session, err := p.factory()
		if err != nil {
			p.recordError(err)
			continue
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			session.Destroy()
			return
		}
		p.sessions <- session
		p.mu.Unlock()
	}
}

func (p *SessionPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *SessionPool) Metrics() MetricsSnapshot {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return MetricsSnapshot{
		PoolSize:        p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
	}
}

// PooledEngine adapts a SessionPool to the Engine interface: each Infer
// borrows one session for the duration of the call.
type PooledEngine struct {
	Pool *SessionPool
}

func (e *PooledEngine) Infer(ctx context.Context, in *models.Tensor) (*models.Tensor, error) {
	session, err := e.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer e.Pool.Release(session)
	return session.Infer(ctx, in)
}
