package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/cadence-settings/internal/domain"
	"github.com/ignite/cadence-settings/internal/service/settings"
)

// =============================================================================
// SIDE-EFFECT DISPATCHER
// =============================================================================
// Fans out the post-commit recomputations for committed settings mutations:
// task plan recalculation, start time adjustment, cache invalidation, lead
// score resets. Jobs arrive after the transaction has committed, so every
// failure here is strictly local: it is retried, then logged, and never
// surfaces as the mutation's failure.

const (
	// DefaultDispatchWorkers is the number of concurrent job processors.
	DefaultDispatchWorkers = 4

	// DefaultQueueSize bounds the in-flight job queue. Dispatch never blocks
	// the request path; overflow is logged and dropped for out-of-band retry.
	DefaultQueueSize = 1024

	// DefaultMaxAttempts is how many times a single effect is tried before
	// it is abandoned with a log line.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the base backoff between attempts.
	DefaultRetryDelay = 500 * time.Millisecond
)

// Scheduler is the task-scheduling collaborator. Implementations are
// external; the dispatcher only triggers them.
type Scheduler interface {
	// Recalculate re-derives the forward task plan for the users.
	Recalculate(ctx context.Context, userIDs []string) error
	// AdjustStartTime shifts pending task start times; consumers accept
	// either user ids or sub-department ids.
	AdjustStartTime(ctx context.Context, userIDs, sdIDs []string) error
}

// CacheInvalidator drops cached effective settings for users.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userIDs []string, namespace string) error
}

// LeadScorer is the lead-scoring collaborator.
type LeadScorer interface {
	// Reset re-runs lead scoring for the scope under the new threshold and
	// reset period.
	Reset(ctx context.Context, scopeID string, priority domain.Priority, threshold, resetPeriod int) error
}

// EffectDispatcher processes effect jobs detached from the request
// lifecycle. It implements settings.Dispatcher.
type EffectDispatcher struct {
	scheduler  Scheduler
	cache      CacheInvalidator
	leadScorer LeadScorer

	jobs        chan settings.EffectJob
	workers     int
	maxAttempts int
	retryDelay  time.Duration

	// Stats
	jobsProcessed   int64
	effectsFailed   int64
	jobsDropped     int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewEffectDispatcher creates a dispatcher wired to the three downstream
// consumers. Any consumer may be nil; its effects are then skipped.
func NewEffectDispatcher(scheduler Scheduler, cache CacheInvalidator, leadScorer LeadScorer) *EffectDispatcher {
	return &EffectDispatcher{
		scheduler:   scheduler,
		cache:       cache,
		leadScorer:  leadScorer,
		jobs:        make(chan settings.EffectJob, DefaultQueueSize),
		workers:     DefaultDispatchWorkers,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
	}
}

// SetWorkers overrides the processor count. Only effective before Start.
func (d *EffectDispatcher) SetWorkers(n int) {
	if n > 0 {
		d.workers = n
	}
}

// Start launches the worker goroutines.
func (d *EffectDispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("effect dispatcher already running")
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.running = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(i)
	}
	log.Printf("[EffectDispatcher] Started with %d workers (queue=%d)", d.workers, cap(d.jobs))
	return nil
}

// Stop drains nothing: in-flight jobs finish, queued jobs are abandoned.
func (d *EffectDispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
	log.Printf("[EffectDispatcher] Stopped (processed=%d, failed_effects=%d, dropped=%d)",
		atomic.LoadInt64(&d.jobsProcessed), atomic.LoadInt64(&d.effectsFailed), atomic.LoadInt64(&d.jobsDropped))
}

// Dispatch queues a job without blocking the caller. The settings change is
// already committed; if the queue is full the job is dropped with a log line
// for out-of-band retry.
func (d *EffectDispatcher) Dispatch(job settings.EffectJob) {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()
	if !running {
		atomic.AddInt64(&d.jobsDropped, 1)
		log.Printf("[EffectDispatcher] Dropped job for domain %s (dispatcher not running)", job.Domain)
		return
	}
	select {
	case d.jobs <- job:
	default:
		atomic.AddInt64(&d.jobsDropped, 1)
		log.Printf("[EffectDispatcher] Queue full, dropped job for domain %s (%d users)", job.Domain, len(job.UserIDs))
	}
}

func (d *EffectDispatcher) run(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case job := <-d.jobs:
			d.process(job)
			atomic.AddInt64(&d.jobsProcessed, 1)
		}
	}
}

// process executes every effect of one job. Effects are independent: one
// failing is logged and the rest still run.
func (d *EffectDispatcher) process(job settings.EffectJob) {
	for _, effect := range job.Effects {
		if err := d.runEffect(job, effect); err != nil {
			atomic.AddInt64(&d.effectsFailed, 1)
			log.Printf("[EffectDispatcher] Effect %s failed for domain %s (%d users): %v — settings change stands, recompute must be retried out of band",
				effect, job.Domain, len(job.UserIDs), err)
		}
	}
}

func (d *EffectDispatcher) runEffect(job settings.EffectJob, effect domain.Effect) error {
	var attempt func(ctx context.Context) error

	switch effect {
	case domain.EffectRecalculatePlans:
		if d.scheduler == nil {
			return nil
		}
		attempt = func(ctx context.Context) error {
			return d.scheduler.Recalculate(ctx, job.UserIDs)
		}
	case domain.EffectAdjustStartTime:
		if d.scheduler == nil {
			return nil
		}
		attempt = func(ctx context.Context) error {
			if len(job.SubDepartmentIDs) > 0 {
				return d.scheduler.AdjustStartTime(ctx, nil, job.SubDepartmentIDs)
			}
			return d.scheduler.AdjustStartTime(ctx, job.UserIDs, nil)
		}
	case domain.EffectInvalidateCache:
		if d.cache == nil {
			return nil
		}
		desc, err := domain.Lookup(job.Domain)
		if err != nil {
			return err
		}
		attempt = func(ctx context.Context) error {
			return d.cache.Invalidate(ctx, job.UserIDs, desc.CacheNamespace)
		}
	case domain.EffectResetLeadScores:
		if d.leadScorer == nil {
			return nil
		}
		var ls domain.LeadScoreSettings
		if err := json.Unmarshal(job.Payload, &ls); err != nil {
			return fmt.Errorf("decode lead score payload: %w", err)
		}
		attempt = func(ctx context.Context) error {
			return d.leadScorer.Reset(ctx, job.ScopeID, job.Priority, ls.ScoreThreshold, ls.ResetPeriod)
		}
	default:
		return fmt.Errorf("unknown effect %q", effect)
	}

	var lastErr error
	for i := 0; i < d.maxAttempts; i++ {
		if i > 0 {
			select {
			case <-d.ctx.Done():
				return lastErr
			case <-time.After(d.retryDelay * time.Duration(i)):
			}
		}
		if lastErr = attempt(d.ctx); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// Stats returns processed/failed/dropped counters.
func (d *EffectDispatcher) Stats() (processed, failedEffects, dropped int64) {
	return atomic.LoadInt64(&d.jobsProcessed),
		atomic.LoadInt64(&d.effectsFailed),
		atomic.LoadInt64(&d.jobsDropped)
}

var _ settings.Dispatcher = (*EffectDispatcher)(nil)
