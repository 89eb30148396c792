// Package worker runs background tasks on a bounded ants pool.
// Code in this module never starts naked goroutines for fire-and-forget work.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	// ErrPoolClosed is returned when submitting to a released pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolOverloaded is returned when every worker is busy.
	ErrPoolOverloaded = errors.New("worker pool is overloaded")
)

// Task receives the pool's service context.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with a service lifecycle context.
type Pool struct {
	pool   *ants.Pool
	name   string
	logger *zap.Logger

	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// NewPool creates a pool of size workers. Submissions never wait for a free
// worker; they fail with ErrPoolOverloaded instead.
func NewPool(ctx context.Context, name string, size int, logger *zap.Logger) (*Pool, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.String("pool", name),
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	antsPool, err := ants.NewPool(size,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(true),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	return &Pool{
		pool:          antsPool,
		name:          name,
		logger:        logger,
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// SubmitDetached runs task with the service context rather than a request
// context, so it outlives the request but still observes shutdown.
func (p *Pool) SubmitDetached(task Task) error {
	if p.pool.IsClosed() {
		return ErrPoolClosed
	}
	err := p.pool.Submit(func() {
		select {
		case <-p.serviceCtx.Done():
			p.logger.Debug("Detached task skipped: pool shutting down", zap.String("pool", p.name))
			return
		default:
		}
		task(p.serviceCtx)
	})
	switch {
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrPoolOverloaded
	}
	return err
}

// Shutdown waits up to timeout for running tasks, then cancels the service context.
func (p *Pool) Shutdown(timeout time.Duration) {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		p.logger.Warn("Worker pool shutdown timeout", zap.String("pool", p.name), zap.Error(err))
	}
	p.serviceCancel()
}

// Running number of busy workers.
func (p *Pool) Running() int { return p.pool.Running() }
