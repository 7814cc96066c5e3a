package gate

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrAcquireTimeout is returned when no permit frees up within the
// configured wait. The caller should treat the job as requeueable.
var ErrAcquireTimeout = errors.New("gate: timed out waiting for a permit")

// Gate bounds how many jobs run concurrently across the whole process.
type Gate struct {
	sem            *semaphore.Weighted
	permits        int64
	maxAcquireWait time.Duration
	inUse          int64
	logger         zerolog.Logger
}

func New(permits int, maxAcquireWait time.Duration, logger zerolog.Logger) *Gate {
	return &Gate{
		sem:            semaphore.NewWeighted(int64(permits)),
		permits:        int64(permits),
		maxAcquireWait: maxAcquireWait,
		logger:         logger.With().Str("component", "gate").Logger(),
	}
}

// Run acquires a permit, executes fn and releases the permit on every exit
// path. Waiting is bounded by the configured max acquire wait; on expiry
// ErrAcquireTimeout is returned and fn never runs.
func (g *Gate) Run(ctx context.Context, jobName string, fn func(ctx context.Context) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, g.maxAcquireWait)
	defer cancel()

	if err := g.sem.Acquire(acquireCtx, 1); err != nil {
		// Only the gate's own deadline counts as saturation; a dead parent
		// context is the caller's timeout and is reported as such.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			g.logger.Warn().
				Str("job", jobName).
				Int64("in_use", atomic.LoadInt64(&g.inUse)).
				Int64("permits", g.permits).
				Dur("waited", g.maxAcquireWait).
				Msg("Gate saturated, acquire timed out")
			return ErrAcquireTimeout
		}
		return err
	}

	atomic.AddInt64(&g.inUse, 1)
	defer func() {
		atomic.AddInt64(&g.inUse, -1)
		g.sem.Release(1)
	}()

	return fn(ctx)
}

// InUse reports how many permits are currently held. Advisory only.
func (g *Gate) InUse() int64 {
	return atomic.LoadInt64(&g.inUse)
}

// Capacity reports the total permit count.
func (g *Gate) Capacity() int64 {
	return g.permits
}
