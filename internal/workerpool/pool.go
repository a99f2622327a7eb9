// Package workerpool implements the fixed-size codesign worker pool of
// spec §4.3: a capability the orchestrator receives at start, exposed
// behind the single-method Signer interface so the caller never needs to
// know whether it's talking to the real pool or the InlineFallback (spec
// §9's "either Pool or InlineFallback" design note).
package workerpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/bobbyrathoree/macscope/internal/domain"
)

// ErrShutdown is returned to any call made after Shutdown.
var ErrShutdown = errors.New("workerpool: shut down")

// ErrNoWorkers is returned when every worker has been marked dead.
var ErrNoWorkers = errors.New("workerpool: no live workers")

// taskTimeout is the per-task timeout the pool enforces (spec §4.3).
const taskTimeout = 5 * time.Second

// Signer is the single-method capability both Pool and InlineFallback
// implement.
type Signer interface {
	SignatureOf(ctx context.Context, path string) (*domain.Signature, error)
}

// CollectFunc performs the actual (blocking) signature extraction; in
// production this is Collectors.Signature.
type CollectFunc func(ctx context.Context, path string) *domain.Signature

// Pool is a fixed-size worker pool bounding concurrent signature
// extraction so the scan loop never blocks on it (spec §4.3). Workers are
// never restarted once dead; the pool tracks how many remain live and
// fails fast once none do.
type Pool struct {
	collect CollectFunc
	log     *zap.Logger
	sem     *semaphore.Weighted

	mu        sync.Mutex
	workers   int
	deadCount int
	shutdown  bool
}

// New creates a Pool with n workers (default 2 per spec §4.3).
func New(n int, collect CollectFunc, log *zap.Logger) *Pool {
	if n <= 0 {
		n = 2
	}
	return &Pool{
		collect: collect,
		log:     log,
		sem:     semaphore.NewWeighted(int64(n)),
		workers: n,
	}
}

// SignatureOf queues a signature-extraction task. If zero workers remain
// live, it fails fast (spec §4.3: "subsequent calls fail fast"). Each
// task is cancelled after taskTimeout.
func (p *Pool) SignatureOf(ctx context.Context, path string) (*domain.Signature, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, ErrShutdown
	}
	if p.liveCount() == 0 {
		p.mu.Unlock()
		return nil, ErrNoWorkers
	}
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	result := make(chan *domain.Signature, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.markWorkerDead()
				p.log.Error("workerpool: worker panicked", zap.Any("recover", r))
				select {
				case result <- nil:
				default:
				}
			}
		}()
		result <- p.collect(taskCtx, path)
	}()

	select {
	case sig := <-result:
		return sig, nil
	case <-taskCtx.Done():
		p.log.Debug("workerpool: task timed out", zap.String("path", path))
		return nil, nil
	}
}

// markWorkerDead records one fewer live worker. Workers are never
// restarted automatically (spec §4.3).
func (p *Pool) markWorkerDead() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deadCount < p.workers {
		p.deadCount++
	}
}

// liveCount returns the number of workers still considered alive.
func (p *Pool) liveCount() int {
	return p.workers - p.deadCount
}

// LiveWorkers reports how many workers have not crashed, for /api/stats
// and tests.
func (p *Pool) LiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveCount()
}

// Shutdown makes every later call fail immediately with ErrShutdown (spec
// §4.3). Calls already waiting for a worker slot or already running are
// not interrupted; they complete or time out as usual.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdown = true
}

// InlineFallback implements Signer by running the collector synchronously
// on the calling goroutine, for use when the pool has no live workers
// (spec §4.3 and §7: "fall back to in-thread signature collection").
type InlineFallback struct {
	Collect CollectFunc
}

func (f InlineFallback) SignatureOf(ctx context.Context, path string) (*domain.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()
	return f.Collect(ctx, path), nil
}

// WithFallback composes Pool with InlineFallback into a single Signer: the
// pool is tried first, and only a dead pool (ErrNoWorkers) or a shutdown
// pool falls through to synchronous, in-thread collection (spec §4.3's
// "either Pool or InlineFallback" design note, made automatic so callers
// never branch on pool health themselves).
type WithFallback struct {
	Pool     *Pool
	Fallback InlineFallback
}

func (w WithFallback) SignatureOf(ctx context.Context, path string) (*domain.Signature, error) {
	sig, err := w.Pool.SignatureOf(ctx, path)
	if err == ErrNoWorkers || err == ErrShutdown {
		return w.Fallback.SignatureOf(ctx, path)
	}
	return sig, err
}

// LiveWorkers delegates to the underlying pool so callers that only hold a
// Signer (e.g. the stats handler) can still report worker health.
func (w WithFallback) LiveWorkers() int {
	return w.Pool.LiveWorkers()
}
