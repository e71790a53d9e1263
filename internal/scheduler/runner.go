package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"placement/internal/types"
)

// Handler performs one run of a task at now and reports the number of items
// it handled.
type Handler func(ctx context.Context, now time.Time) (int, error)

// JobHistorian records task runs. Failures to record never fail the run.
type JobHistorian interface {
	Start(ctx context.Context, jobType string, startedAt time.Time) (int64, error)
	Finish(ctx context.Context, id int64, finishedAt time.Time, items int, jobErr error) error
}

// Options configures a Scheduler.
type Options struct {
	Clock   types.Clock
	History JobHistorian // optional
	// RunOnStart fires every task once immediately after Start.
	RunOnStart bool
	Logger     *slog.Logger
}

type task struct {
	name     string
	interval time.Duration
	handler  Handler
	// running serializes invocations of this task. Ticks use TryLock and
	// drop when busy; RunAll waits.
	running sync.Mutex
}

// Scheduler fires registered tasks on fixed intervals, one goroutine per
// task. Runs of the same task never overlap and a failing or panicking run
// never affects the next firing or any other task.
type Scheduler struct {
	clock      types.Clock
	history    JobHistorian
	runOnStart bool
	logger     *slog.Logger

	mu      sync.Mutex
	tasks   []*task
	byName  map[string]*task
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Scheduler with no tasks.
func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = types.RealClock{}
	}
	return &Scheduler{
		clock:      opts.Clock,
		history:    opts.History,
		runOnStart: opts.RunOnStart,
		logger:     opts.Logger,
		byName:     make(map[string]*task),
	}
}

// Register adds a task. It must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.started:
		return fmt.Errorf("register %s: scheduler already started", name)
	case name == "":
		return errors.New("register: empty task name")
	case interval <= 0:
		return fmt.Errorf("register %s: interval must be positive, got %s", name, interval)
	case h == nil:
		return fmt.Errorf("register %s: nil handler", name)
	}
	if _, dup := s.byName[name]; dup {
		return fmt.Errorf("register %s: task already registered", name)
	}

	t := &task{name: name, interval: interval, handler: h}
	s.tasks = append(s.tasks, t)
	s.byName[name] = t
	return nil
}

// Tasks returns the registered task names in registration order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		names[i] = t.name
	}
	return names
}

// Start launches one goroutine per task. A second call logs a warning and
// returns nil. The goroutines stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.logger.WarnContext(ctx, "scheduler already started; ignoring Start")
		return nil
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(runCtx, t)
	}

	s.logger.InfoContext(ctx, "scheduler started", "tasks", len(s.tasks), "run_on_start", s.runOnStart)
	return nil
}

// Stop cancels every task loop and waits for in-flight runs to return or
// for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.InfoContext(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tasks to stop: %w", ctx.Err())
	}
}

// RunAll runs every registered task once, sequentially and in registration
// order, waiting for any in-flight tick of the same task to finish first.
func (s *Scheduler) RunAll(ctx context.Context) []TaskResult {
	s.mu.Lock()
	tasks := append([]*task(nil), s.tasks...)
	s.mu.Unlock()

	results := make([]TaskResult, 0, len(tasks))
	for _, t := range tasks {
		t.running.Lock()
		res := s.invoke(ctx, t)
		t.running.Unlock()
		results = append(results, res)
	}
	return results
}

func (s *Scheduler) loop(ctx context.Context, t *task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.tick(ctx, t)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, t)
		}
	}
}

// tick runs t unless a previous run is still in flight.
func (s *Scheduler) tick(ctx context.Context, t *task) {
	if !t.running.TryLock() {
		s.logger.WarnContext(ctx, "task still running; tick dropped", "task", t.name)
		return
	}
	defer t.running.Unlock()
	s.invoke(ctx, t)
}

// invoke runs the handler once behind a recover boundary and records
// history and metrics.
func (s *Scheduler) invoke(ctx context.Context, t *task) (res TaskResult) {
	ctx = types.WithTaskName(ctx, t.name)
	now := s.clock.Now()
	res = TaskResult{Task: t.name, StartedAt: now}
	log := s.logger.With("task", t.name)

	var historyID int64
	if s.history != nil {
		id, err := s.history.Start(ctx, t.name, now)
		if err != nil {
			log.WarnContext(ctx, "failed to record job start", "error", err)
		} else {
			historyID = id
		}
	}

	started := time.Now()
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			res.Err = types.NewAppError(types.ErrCodeInternalTaskPanic, fmt.Sprintf("task %s panicked: %v", t.name, r), nil)
			log.ErrorContext(ctx, "task panicked", "panic", r, "stack", string(debug.Stack()))
		}
		res.Duration = time.Since(started)
		if res.Err != nil {
			res.Error = res.Err.Error()
			if status == "ok" {
				status = "error"
			}
		}

		TaskRunsTotal.WithLabelValues(t.name, status).Inc()
		TaskDuration.WithLabelValues(t.name).Observe(res.Duration.Seconds())
		TaskItems.WithLabelValues(t.name).Add(float64(res.Items))

		if historyID != 0 {
			if err := s.history.Finish(ctx, historyID, s.clock.Now(), res.Items, res.Err); err != nil {
				log.WarnContext(ctx, "failed to record job finish", "error", err)
			}
		}
	}()

	res.Items, res.Err = t.handler(ctx, now)
	if res.Err != nil {
		log.ErrorContext(ctx, "task failed", "count", res.Items, "error", res.Err)
	} else {
		log.InfoContext(ctx, "task complete", "count", res.Items, "duration", time.Since(started))
	}
	return res
}
