package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
	"github.com/JakeFAU/geo-report-client/internal/clock/system"
	"github.com/JakeFAU/geo-report-client/internal/metrics"
	"github.com/JakeFAU/geo-report-client/internal/notify"
	"github.com/JakeFAU/geo-report-client/internal/tracing"
)

const (
	defaultPollInterval       = 2 * time.Second
	defaultExpireAfter        = 30 * time.Second
	defaultMaxConcurrentPolls = 8
)

// Config tunes the reconciliation loop.
type Config struct {
	// PollInterval is the tick period (default 2s).
	PollInterval time.Duration
	// ExpireAfter is how long a finished job stays listed (default 30s).
	ExpireAfter time.Duration
	// PollTimeout bounds each status call. Zero leaves calls unbounded.
	PollTimeout time.Duration
	// MaxConcurrentPolls caps in-flight status calls per tick (default 8).
	MaxConcurrentPolls int

	Clock          analysis.Clock
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
}

// Tracker holds the set of tracked jobs. All methods are safe for concurrent use.
type Tracker struct {
	poller  analysis.StatusPoller
	emitter notify.Emitter
	cfg     Config
	clock   analysis.Clock
	logger  *zap.Logger
	tracer  trace.Tracer

	mu        sync.Mutex
	entries   map[string]*entry
	order     []string
	announced *notify.Ledger
	nextGen   uint64
	loop      *loop
	subs      map[int]chan []Job
	nextSub   int
	closed    bool
}

// entry is one tracked job. gen distinguishes a re-tracked id from the entry
// it replaced so stale expiry timers and poll results are ignored.
type entry struct {
	job    Job
	gen    uint64
	expiry *time.Timer
}

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type pollTarget struct {
	id  string
	gen uint64
}

type pollResult struct {
	pollTarget
	snap analysis.Snapshot
	err  error
}

// New builds an idle Tracker. Notifications go to emitter, which may be nil.
func New(poller analysis.StatusPoller, emitter notify.Emitter, cfg Config) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = defaultExpireAfter
	}
	if cfg.MaxConcurrentPolls <= 0 {
		cfg.MaxConcurrentPolls = defaultMaxConcurrentPolls
	}
	clock := cfg.Clock
	if clock == nil {
		clock = system.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = notify.EmitterFunc(func(notify.Notification) {})
	}
	return &Tracker{
		poller:    poller,
		emitter:   emitter,
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		tracer:    tracing.Tracer(cfg.TracerProvider),
		entries:   make(map[string]*entry),
		announced: notify.NewLedger(),
		subs:      make(map[int]chan []Job),
	}
}

// Track starts following jobID. It returns false without side effects when
// jobID is empty, already tracked, or the tracker is closed.
func (t *Tracker) Track(jobID, displayName, groupLabel string) bool {
	if jobID == "" {
		return false
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	if _, ok := t.entries[jobID]; ok {
		t.mu.Unlock()
		return false
	}

	t.nextGen++
	e := &entry{
		gen: t.nextGen,
		job: Job{
			ID:          jobID,
			DisplayName: displayName,
			GroupLabel:  groupLabel,
			Status:      analysis.StatusRunning,
			Message:     InitialMessage,
			StartedAt:   t.clock.Now(),
		},
	}
	t.entries[jobID] = e
	t.order = append(t.order, jobID)

	var started []notify.Notification
	if t.announced.Mark(notify.Key{JobID: jobID, Kind: notify.KindStarted}) {
		started = append(started, notify.New(notify.KindStarted, jobID, displayName, groupLabel, "", e.job.StartedAt))
	}
	metrics.SetTrackedJobs(len(t.entries))
	t.ensureLoopLocked()
	t.publishLocked()
	t.mu.Unlock()

	t.logger.Info("tracking analysis", zap.String("job_id", jobID), zap.String("label", groupLabel))
	t.emit(started)
	return true
}

// StopTracking forgets jobID regardless of its status. It only stops local
// polling; the backend job is unaffected.
func (t *Tracker) StopTracking(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[jobID]; !ok {
		return false
	}
	t.removeLocked(jobID)
	t.publishLocked()
	t.idleIfEmptyLocked()
	return true
}

// Jobs returns a snapshot of the tracked jobs in the order they were tracked.
func (t *Tracker) Jobs() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Job returns a snapshot of one tracked job.
func (t *Tracker) Job(jobID string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[jobID]
	if !ok {
		return Job{}, false
	}
	return e.job.clone(), true
}

// Len returns the number of tracked jobs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Polling reports whether the reconciliation loop is running.
func (t *Tracker) Polling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loop != nil
}

// Subscribe returns a channel that receives the job list after every change,
// starting with the current list. Slow readers only see the latest list. The
// returned func unsubscribes and closes the channel.
func (t *Tracker) Subscribe() (<-chan []Job, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan []Job, 1)
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	ch <- t.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if sub, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(sub)
			}
		})
	}
}

// Close stops polling, cancels pending expiries and closes subscriber
// channels. It waits for an in-flight tick to finish or ctx to end.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	current := t.loop
	t.stopLoopLocked()
	for _, e := range t.entries {
		if e.expiry != nil {
			e.expiry.Stop()
		}
	}
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	t.mu.Unlock()

	if current == nil {
		return nil
	}
	select {
	case <-current.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tracker close wait: %w", ctx.Err())
	}
}

func (t *Tracker) ensureLoopLocked() {
	if t.loop != nil || t.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{cancel: cancel, done: make(chan struct{})}
	t.loop = l
	go t.run(ctx, l.done)
	t.logger.Debug("tracker loop started")
}

func (t *Tracker) stopLoopLocked() {
	if t.loop == nil {
		return
	}
	t.loop.cancel()
	t.loop = nil
	t.logger.Debug("tracker loop stopped")
}

func (t *Tracker) idleIfEmptyLocked() {
	if len(t.entries) == 0 {
		t.stopLoopLocked()
	}
}

// run ticks until ctx is cancelled. Ticks run on this goroutine, so a tick
// always settles before the next one starts.
func (t *Tracker) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Tracker) tick(ctx context.Context) {
	targets := t.pollTargets()
	if len(targets) == 0 {
		return
	}
	ctx, span := t.tracer.Start(ctx, "tracker.tick", trace.WithAttributes(attribute.Int("tracker.polls", len(targets))))
	defer span.End()

	// Per-job failures land in results. The group only fails when the loop
	// is stopped, which skips polls still waiting for a slot.
	results := make([]pollResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.MaxConcurrentPolls)
	for i, target := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pctx := gctx
			if t.cfg.PollTimeout > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(gctx, t.cfg.PollTimeout)
				defer cancel()
			}
			snap, err := t.poller.GetStatus(pctx, target.id)
			results[i] = pollResult{pollTarget: target, snap: snap, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.logger.Debug("tick abandoned", zap.Error(err))
		return
	}

	t.apply(ctx, results)
}

func (t *Tracker) pollTargets() []pollTarget {
	t.mu.Lock()
	defer t.mu.Unlock()
	targets := make([]pollTarget, 0, len(t.entries))
	for _, id := range t.order {
		e := t.entries[id]
		if e.job.Terminal() {
			continue
		}
		targets = append(targets, pollTarget{id: id, gen: e.gen})
	}
	return targets
}

// apply folds one tick's poll results into the collection under a single lock
// acquisition. Results from a loop that has since been stopped are dropped.
func (t *Tracker) apply(ctx context.Context, results []pollResult) {
	var finished []notify.Notification

	t.mu.Lock()
	if ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	changed := false
	for _, r := range results {
		e, ok := t.entries[r.id]
		if !ok || e.gen != r.gen || e.job.Terminal() {
			continue
		}
		log := t.logger.With(zap.String("job_id", r.id))
		if r.err != nil {
			metrics.ObservePoll(metrics.ModeBackground, pollOutcome(r.err))
			log.Warn("status poll failed; retrying next tick", zap.Error(r.err))
			continue
		}
		status, err := analysis.MapStatus(r.snap.Status)
		if err != nil {
			metrics.ObservePoll(metrics.ModeBackground, metrics.OutcomeMalformed)
			log.Warn("status poll returned unknown status; retrying next tick", zap.Error(err))
			continue
		}
		metrics.ObservePoll(metrics.ModeBackground, metrics.OutcomeOK)

		e.job.Status = status
		if r.snap.Progress != nil {
			e.job.Progress = *r.snap.Progress
		}
		if r.snap.Message != nil {
			e.job.Message = *r.snap.Message
		}
		changed = true

		if !status.Terminal() {
			continue
		}
		finishedAt := now
		e.job.FinishedAt = &finishedAt
		e.expiry = t.scheduleExpiryLocked(r.id, e.gen)
		metrics.ObserveJobFinished(metrics.ModeBackground, string(status))
		log.Info("analysis finished", zap.String("status", string(status)))

		kind := notify.KindCompleted
		detail := ""
		if status == analysis.StatusFailed {
			kind = notify.KindFailed
			detail = e.job.Message
		}
		if t.announced.Mark(notify.Key{JobID: r.id, Kind: kind}) {
			finished = append(finished, notify.New(kind, r.id, e.job.DisplayName, e.job.GroupLabel, detail, now))
		}
	}
	if changed {
		t.publishLocked()
	}
	t.mu.Unlock()

	t.emit(finished)
}

func (t *Tracker) scheduleExpiryLocked(jobID string, gen uint64) *time.Timer {
	return time.AfterFunc(t.cfg.ExpireAfter, func() {
		t.expire(jobID, gen)
	})
}

func (t *Tracker) expire(jobID string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[jobID]
	if !ok || e.gen != gen || t.closed {
		return
	}
	t.logger.Debug("expiring finished analysis", zap.String("job_id", jobID))
	t.removeLocked(jobID)
	t.publishLocked()
	t.idleIfEmptyLocked()
}

func (t *Tracker) removeLocked(jobID string) {
	if e := t.entries[jobID]; e != nil && e.expiry != nil {
		e.expiry.Stop()
	}
	delete(t.entries, jobID)
	t.order = slices.DeleteFunc(t.order, func(id string) bool { return id == jobID })
	t.announced.Forget(jobID)
	metrics.SetTrackedJobs(len(t.entries))
}

func (t *Tracker) snapshotLocked() []Job {
	jobs := make([]Job, 0, len(t.order))
	for _, id := range t.order {
		jobs = append(jobs, t.entries[id].job.clone())
	}
	return jobs
}

// publishLocked hands the current list to every subscriber, replacing any
// list the subscriber has not read yet.
func (t *Tracker) publishLocked() {
	if len(t.subs) == 0 {
		return
	}
	for _, ch := range t.subs {
		snapshot := t.snapshotLocked()
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (t *Tracker) emit(batch []notify.Notification) {
	for _, n := range batch {
		t.emitter.Emit(n)
	}
}

func pollOutcome(err error) string {
	if errors.Is(err, analysis.ErrMalformedResponse) {
		return metrics.OutcomeMalformed
	}
	return metrics.OutcomeError
}
