package keepalive

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"pingkeeper/internal/eventbus"
	logx "pingkeeper/pkg/logx"
)

const (
	DefaultInterval    = 10 * time.Second
	DefaultMaxInFlight = 512
)

type Config struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
	// MaxInFlight bounds concurrent probes across all owners.
	MaxInFlight int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ProbeTimeout <= 0 || c.ProbeTimeout >= c.Interval {
		c.ProbeTimeout = min(DefaultProbeTimeout, c.Interval*4/5)
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
	return c
}

type task struct {
	owner  Owner
	target string
	handle Handle
	gen    uint64

	failureNotified bool

	startedAt   time.Time
	lastProbeAt time.Time
	last        *Result
	probes      uint64
	failures    uint64
}

func (t *task) info(interval time.Duration) TaskInfo {
	out := TaskInfo{
		Owner:           t.owner,
		Target:          t.target,
		Interval:        interval,
		StartedAt:       t.startedAt,
		LastProbeAt:     t.lastProbeAt,
		Probes:          t.probes,
		Failures:        t.failures,
		FailureNotified: t.failureNotified,
	}
	if t.last != nil {
		r := *t.last
		out.LastResult = &r
	}
	return out
}

// Registry holds at most one probe task per owner.
//
// The mutex is held only while the map and task fields change. Probes,
// notifications and bus publishes always happen outside it.
type Registry struct {
	cfg      Config
	sched    Scheduler
	prober   Prober
	notifier Notifier
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	swg    sizedwaitgroup.SizedWaitGroup

	mu     sync.Mutex
	tasks  map[Owner]*task
	gen    uint64
	closed bool
}

type Option func(*Registry)

func WithBus(b eventbus.Bus) Option {
	return func(r *Registry) {
		if b != nil {
			r.bus = b
		}
	}
}

func WithLogger(l logx.Logger) Option { return func(r *Registry) { r.log = l } }

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(cfg Config, sched Scheduler, prober Prober, notifier Notifier, opts ...Option) *Registry {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		cfg:      cfg,
		sched:    sched,
		prober:   prober,
		notifier: notifier,
		bus:      eventbus.Nop{},
		log:      logx.Nop(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		swg:      sizedwaitgroup.New(cfg.MaxInFlight),
		tasks:    map[Owner]*task{},
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With(logx.String("comp", "keepalive"))
	return r
}

func (r *Registry) Interval() time.Duration { return r.cfg.Interval }

// Start installs a task probing target for owner, silently replacing any
// existing task. One probe runs immediately; the rest follow every
// interval. A scheduler failure is logged and leaves owner without a task.
func (r *Registry) Start(ctx context.Context, owner Owner, target string) {
	replaced := r.stop(ctx, owner, false)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn("start ignored: registry closed", logx.Int64("owner", int64(owner)))
		return
	}
	// A concurrent Start for the same owner may have won the race.
	if raced := r.detachLocked(owner); raced != nil {
		replaced = true
	}
	r.gen++
	gen := r.gen
	h, err := r.sched.Every(r.cfg.Interval, func() { r.probe(owner, gen, target) })
	if err != nil {
		r.mu.Unlock()
		r.log.Error("schedule probe failed", logx.Int64("owner", int64(owner)), logx.String("target", target), logx.Err(err))
		return
	}
	t := &task{owner: owner, target: target, handle: h, gen: gen, startedAt: r.now()}
	r.tasks[owner] = t
	info := t.info(r.cfg.Interval)
	r.mu.Unlock()

	if replaced {
		r.publish(eventbus.TaskReplaced, info)
	}
	r.publish(eventbus.TaskStarted, info)
	r.log.Info("monitoring started",
		logx.Int64("owner", int64(owner)),
		logx.String("target", target),
		logx.Duration("interval", r.cfg.Interval),
		logx.Bool("replaced", replaced),
	)

	go r.probe(owner, gen, target)
	r.notifier.Notify(ctx, owner, StartedText(target, r.cfg.Interval), StopAction(owner))
}

// Stop cancels owner's task and sends one "stopped" notification. It
// reports whether a task existed; without one nothing happens.
func (r *Registry) Stop(ctx context.Context, owner Owner) bool {
	return r.stop(ctx, owner, true)
}

// stop is the only removal path: explicit stops notify, replacement does not.
func (r *Registry) stop(ctx context.Context, owner Owner, notify bool) bool {
	r.mu.Lock()
	t := r.detachLocked(owner)
	r.mu.Unlock()
	if t == nil {
		return false
	}

	r.publish(eventbus.TaskStopped, map[string]any{
		"owner":  t.owner,
		"target": t.target,
		"silent": !notify,
	})
	if notify {
		r.log.Info("monitoring stopped", logx.Int64("owner", int64(owner)), logx.String("target", t.target))
		r.notifier.Notify(ctx, owner, StoppedText(t.target), nil)
	} else {
		r.log.Debug("task replaced", logx.Int64("owner", int64(owner)), logx.String("target", t.target))
	}
	return true
}

// detachLocked cancels and removes owner's task. r.mu must be held.
func (r *Registry) detachLocked(owner Owner) *task {
	t, ok := r.tasks[owner]
	if !ok {
		return nil
	}
	r.sched.Cancel(t.handle)
	delete(r.tasks, owner)
	return t
}

// Status returns the target owner is monitoring.
func (r *Registry) Status(owner Owner) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[owner]
	if !ok {
		return "", false
	}
	return t.target, true
}

func (r *Registry) Info(owner Owner) (TaskInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[owner]
	if !ok {
		return TaskInfo{}, false
	}
	return t.info(r.cfg.Interval), true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Snapshot returns every task ordered by owner.
func (r *Registry) Snapshot() []TaskInfo {
	r.mu.Lock()
	out := make([]TaskInfo, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.info(r.cfg.Interval))
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

// Close cancels every schedule without notifying owners, aborts running
// probes and waits for them until ctx is done. Tasks are not persisted.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	n := len(r.tasks)
	for owner := range r.tasks {
		r.detachLocked(owner)
	}
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.swg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("registry closed", logx.Int("dropped_tasks", n))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) current(owner Owner, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[owner]
	return ok && t.gen == gen
}

// probe runs one check for the task identified by (owner, gen).
func (r *Registry) probe(owner Owner, gen uint64, target string) {
	if err := r.swg.AddWithContext(r.ctx); err != nil {
		return
	}
	defer r.swg.Done()
	if !r.current(owner, gen) {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.ProbeTimeout)
	res := r.prober.Probe(ctx, target)
	cancel()
	if errors.Is(r.ctx.Err(), context.Canceled) {
		return
	}
	r.apply(owner, gen, target, res)
}

// apply records res on the task. Results for a task that has since been
// stopped or replaced are dropped.
func (r *Registry) apply(owner Owner, gen uint64, target string, res Result) {
	r.mu.Lock()
	t, ok := r.tasks[owner]
	if !ok || t.gen != gen {
		r.mu.Unlock()
		r.log.Debug("stale probe result discarded", logx.Int64("owner", int64(owner)), logx.String("target", target))
		return
	}
	t.probes++
	t.lastProbeAt = r.now()
	t.last = &res
	firstFailure := false
	if !res.OK {
		t.failures++
		if !t.failureNotified {
			t.failureNotified = true
			firstFailure = true
		}
	}
	r.mu.Unlock()

	fields := []logx.Field{
		logx.Int64("owner", int64(owner)),
		logx.String("target", target),
		logx.Duration("latency", res.Latency),
	}
	data := map[string]any{"owner": owner, "target": target, "result": res}
	if res.OK {
		r.log.Debug("probe ok", append(fields, logx.Int("status", res.Status))...)
		r.publish(eventbus.ProbeOK, data)
		return
	}
	r.publish(eventbus.ProbeFailed, data)
	if !firstFailure {
		r.log.Debug("probe failed", append(fields, logx.String("reason", res.Reason))...)
		return
	}
	r.log.Warn("probe failed; notifying owner", append(fields, logx.String("reason", res.Reason))...)
	r.notifier.Notify(r.ctx, owner, FailureText(target, res.Reason), nil)
}

func (r *Registry) publish(typ string, data any) {
	r.bus.Publish(eventbus.Event{Type: typ, Time: r.now(), Data: data})
}
