package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dispatchkit/pkg/events"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/notifications"
	"github.com/dmitrymomot/dispatchkit/pkg/priorityqueue"
)

// Processor accumulates items into keyed batches and runs them as jobs.
// Items of one job are processed sequentially; up to MaxConcurrent jobs run at once.
type Processor[T any] struct {
	opts options

	mu      sync.Mutex
	buffers map[string][]T
	jobs    map[string]*Job[T]
	process ProcessFunc[T]

	// pending holds job IDs in priority order.
	pending *priorityqueue.Queue[string]

	sem      chan struct{}
	wg       sync.WaitGroup
	stopMu   sync.Mutex // guards stopping and wg.Add
	stopping atomic.Bool

	runMu    sync.Mutex
	jobCtx   context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// New creates a processor. A process function must be set before Start.
func New[T any](fn ProcessFunc[T], opts ...Option) *Processor[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Processor[T]{
		opts:    o,
		buffers: make(map[string][]T),
		jobs:    make(map[string]*Job[T]),
		process: fn,
		pending: priorityqueue.New[string](
			priorityqueue.WithMaxSize(o.maxPendingJobs),
			priorityqueue.WithClock(o.now),
		),
		sem: make(chan struct{}, o.maxConcurrent),
	}
}

// SetProcessor replaces the process function. Jobs already running keep the old one.
func (p *Processor[T]) SetProcessor(fn ProcessFunc[T]) {
	p.mu.Lock()
	p.process = fn
	p.mu.Unlock()
}

// Add buffers item under key. When the batch reaches MaxBatchSize it is flushed
// immediately and the new job ID is returned; otherwise the ID is empty.
func (p *Processor[T]) Add(ctx context.Context, item T, key string) (string, error) {
	if key == "" {
		key = DefaultKey
	}

	p.mu.Lock()
	p.buffers[key] = append(p.buffers[key], item)
	if len(p.buffers[key]) < p.opts.maxBatchSize {
		p.mu.Unlock()
		return "", nil
	}
	items := p.buffers[key]
	delete(p.buffers, key)
	p.mu.Unlock()

	job, err := p.createJob(ctx, items, notifications.PriorityNormal, key)
	if err != nil {
		p.rebuffer(key, items)
		return "", err
	}
	return job.ID, nil
}

// AddBatch adds every item under key and returns the IDs of the jobs it flushed.
func (p *Processor[T]) AddBatch(ctx context.Context, items []T, key string) ([]string, error) {
	var ids []string
	for _, item := range items {
		id, err := p.Add(ctx, item, key)
		if err != nil {
			return ids, err
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Flush turns the batch under key into a job. The bool is false when the batch is empty.
func (p *Processor[T]) Flush(ctx context.Context, key string) (Job[T], bool, error) {
	if key == "" {
		key = DefaultKey
	}

	p.mu.Lock()
	items := p.buffers[key]
	delete(p.buffers, key)
	p.mu.Unlock()

	if len(items) == 0 {
		return Job[T]{}, false, nil
	}

	job, err := p.createJob(ctx, items, notifications.PriorityNormal, key)
	if err != nil {
		p.rebuffer(key, items)
		return Job[T]{}, false, err
	}
	return job, true, nil
}

// FlushAll flushes every non-empty batch in key order.
func (p *Processor[T]) FlushAll(ctx context.Context) ([]Job[T], error) {
	p.mu.Lock()
	keys := slices.Sorted(maps.Keys(p.buffers))
	p.mu.Unlock()

	var (
		jobs []Job[T]
		errs []error
	)
	for _, key := range keys {
		job, ok, err := p.Flush(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("flush batch %q: %w", key, err))
			continue
		}
		if ok {
			jobs = append(jobs, job)
		}
	}
	return jobs, errors.Join(errs...)
}

// CreateJob schedules items as a single job with the given priority.
func (p *Processor[T]) CreateJob(ctx context.Context, items []T, priority notifications.Priority) (Job[T], error) {
	return p.createJob(ctx, slices.Clone(items), priority, "")
}

// CancelJob cancels a job that has not started yet.
func (p *Processor[T]) CancelJob(ctx context.Context, id string) error {
	p.mu.Lock()
	job, ok := p.jobs[id]
	if !ok {
		p.mu.Unlock()
		return ErrJobNotFound
	}
	if job.Status != JobPending || !p.pending.Remove(id) {
		p.mu.Unlock()
		return ErrJobNotPending
	}
	now := p.opts.now()
	job.Status = JobCancelled
	job.CompletedAt = &now
	p.mu.Unlock()

	p.opts.logger.LogAttrs(ctx, slog.LevelInfo, "batch job cancelled", logger.JobID(id))
	p.emit(ctx, events.JobCancelled, job.snapshot())
	return nil
}

// GetJob returns a snapshot of the job.
func (p *Processor[T]) GetJob(id string) (Job[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, ok := p.jobs[id]
	if !ok {
		return Job[T]{}, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// Stats returns buffer and job counters.
func (p *Processor[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{Batches: len(p.buffers)}
	for _, items := range p.buffers {
		s.Buffered += len(items)
	}
	for _, job := range p.jobs {
		switch job.Status {
		case JobPending:
			s.Pending++
		case JobProcessing:
			s.Processing++
		case JobCompleted:
			s.Completed++
		case JobFailed:
			s.Failed++
		case JobCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Start launches the processing and auto-flush ticks.
func (p *Processor[T]) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.cancel != nil {
		return ErrAlreadyStarted
	}

	p.mu.Lock()
	hasProcessor := p.process != nil
	p.mu.Unlock()
	if !hasProcessor {
		return ErrNoProcessor
	}

	// Jobs finish their items even after shutdown begins.
	p.jobCtx = context.WithoutCancel(ctx)

	var loopCtx context.Context
	loopCtx, p.cancel = context.WithCancel(ctx)
	p.loopDone = make(chan struct{})
	p.stopping.Store(false)

	go p.loop(loopCtx, p.loopDone)

	p.opts.logger.Info("batch processor started",
		slog.Int("max_concurrent", cap(p.sem)),
		slog.Int("max_batch_size", p.opts.maxBatchSize),
	)
	return nil
}

// Stop halts the ticks and blocks until every processing job has drained.
// Pending jobs and buffered items are kept.
func (p *Processor[T]) Stop() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.cancel == nil {
		return ErrNotStarted
	}

	p.stopMu.Lock()
	p.stopping.Store(true)
	p.stopMu.Unlock()

	p.cancel()
	<-p.loopDone

	p.opts.logger.Info("batch processor stopping, waiting for active jobs")
	p.wg.Wait()
	p.cancel = nil

	p.opts.logger.Info("batch processor stopped")
	return nil
}

// Run starts the processor and returns a function suitable for errgroup.
func (p *Processor[T]) Run(ctx context.Context) func() error {
	return func() error {
		if err := p.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return p.Stop()
	}
}

func (p *Processor[T]) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	processTicker := time.NewTicker(p.opts.processingInterval)
	defer processTicker.Stop()
	flushTicker := time.NewTicker(p.opts.autoFlushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-processTicker.C:
			p.tick(ctx, "process", p.startPending)
		case <-flushTicker.C:
			p.tick(ctx, "flush", func() {
				if _, err := p.FlushAll(ctx); err != nil {
					p.opts.logger.LogAttrs(ctx, slog.LevelWarn, "auto flush failed", logger.Error(err))
				}
				p.pruneJobs()
			})
		}
	}
}

// tick runs fn and converts a panic into an error event so the loop survives.
func (p *Processor[T]) tick(ctx context.Context, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("batch %s tick panicked: %v", name, r)
			p.opts.logger.LogAttrs(ctx, slog.LevelError, "batch tick panicked", logger.Error(err))
			p.opts.bus.Emit(ctx, events.Event{Type: events.Error, Component: "batch", Error: err.Error()})
		}
	}()
	fn()
}

// startPending starts pending jobs in priority order while slots are free.
func (p *Processor[T]) startPending() {
	for {
		select {
		case p.sem <- struct{}{}:
		default:
			return
		}

		p.stopMu.Lock()
		if p.stopping.Load() {
			p.stopMu.Unlock()
			<-p.sem
			return
		}
		item, ok := p.pending.Dequeue()
		if !ok {
			p.stopMu.Unlock()
			<-p.sem
			return
		}
		p.wg.Add(1)
		p.stopMu.Unlock()

		go p.runJob(item.ID)
	}
}

func (p *Processor[T]) runJob(id string) {
	defer p.wg.Done()
	defer func() { <-p.sem }()

	ctx := p.jobCtx

	p.mu.Lock()
	job, ok := p.jobs[id]
	if !ok || job.Status != JobPending {
		p.mu.Unlock()
		return
	}
	now := p.opts.now()
	job.Status = JobProcessing
	job.StartedAt = &now
	process := p.process
	items := job.Items
	started := job.snapshot()
	p.mu.Unlock()

	p.opts.logger.LogAttrs(ctx, slog.LevelDebug, "batch job started",
		logger.JobID(id),
		slog.Int("items", len(items)),
	)
	p.emit(ctx, events.JobStarted, started)

	for i, item := range items {
		err := p.processItem(ctx, process, item)

		p.mu.Lock()
		job.Progress.Processed++
		if err != nil {
			job.Progress.Failed++
			job.Errors = append(job.Errors, ItemError[T]{Index: i, Item: item, Error: err.Error()})
		} else {
			job.Progress.Successful++
		}
		progress := job.snapshot()
		p.mu.Unlock()

		p.emit(ctx, events.JobProgress, progress)
	}

	p.mu.Lock()
	done := p.opts.now()
	job.CompletedAt = &done
	job.Status = JobCompleted
	if job.Progress.Failed > 0 {
		job.Status = JobFailed
	}
	final := job.snapshot()
	p.mu.Unlock()

	level, typ := slog.LevelInfo, events.JobCompleted
	if final.Status == JobFailed {
		level, typ = slog.LevelWarn, events.JobFailed
	}
	p.opts.logger.LogAttrs(ctx, level, "batch job finished",
		logger.JobID(id),
		slog.String("status", string(final.Status)),
		slog.Int("successful", final.Progress.Successful),
		slog.Int("failed", final.Progress.Failed),
		logger.Duration(done.Sub(now)),
	)
	p.emit(ctx, typ, final)
}

func (p *Processor[T]) processItem(ctx context.Context, process ProcessFunc[T], item T) (err error) {
	if p.opts.limiter != nil {
		if err := p.opts.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrItemPanicked, r)
		}
	}()
	return process(ctx, item)
}

func (p *Processor[T]) createJob(ctx context.Context, items []T, priority notifications.Priority, key string) (Job[T], error) {
	if len(items) == 0 {
		return Job[T]{}, ErrEmptyJob
	}

	job := &Job[T]{
		ID:        uuid.NewString(),
		BatchKey:  key,
		Priority:  priority,
		Status:    JobPending,
		Items:     items,
		Progress:  Progress{Total: len(items)},
		CreatedAt: p.opts.now(),
	}

	p.mu.Lock()
	p.jobs[job.ID] = job
	snap := job.snapshot()
	p.mu.Unlock()

	if err := p.pending.Enqueue(priorityqueue.Item[string]{ID: job.ID, Priority: priority, Value: job.ID}); err != nil {
		p.mu.Lock()
		delete(p.jobs, job.ID)
		p.mu.Unlock()
		if errors.Is(err, priorityqueue.ErrQueueFull) {
			return Job[T]{}, ErrTooManyPendingJobs
		}
		return Job[T]{}, fmt.Errorf("schedule job: %w", err)
	}

	p.opts.logger.LogAttrs(ctx, slog.LevelDebug, "batch job created",
		logger.JobID(job.ID),
		slog.String("batch_key", key),
		slog.Int("items", len(items)),
		logger.Priority(priority),
	)
	p.emit(ctx, events.JobCreated, snap)
	return snap, nil
}

func (p *Processor[T]) rebuffer(key string, items []T) {
	p.mu.Lock()
	p.buffers[key] = append(items, p.buffers[key]...)
	p.mu.Unlock()
}

func (p *Processor[T]) pruneJobs() {
	if p.opts.jobRetention == 0 {
		return
	}
	cutoff := p.opts.now().Add(-p.opts.jobRetention)

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, job := range p.jobs {
		if job.Status.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(p.jobs, id)
		}
	}
}

func (p *Processor[T]) emit(ctx context.Context, t events.Type, job Job[T]) {
	p.opts.bus.Emit(ctx, events.Event{
		Type:      t,
		Component: "batch",
		JobID:     job.ID,
		Priority:  job.Priority.String(),
		Data: map[string]any{
			"batch_key":  job.BatchKey,
			"status":     string(job.Status),
			"total":      job.Progress.Total,
			"processed":  job.Progress.Processed,
			"successful": job.Progress.Successful,
			"failed":     job.Progress.Failed,
		},
	})
}
