package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron and runs periodic tasks with context support.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	tasks  map[string]*scheduledTask // taskID -> scheduledTask
	mu     sync.RWMutex
	wg     sync.WaitGroup
}

// scheduledTask tracks a task and its cron entry.
type scheduledTask struct {
	id       string
	expr     string
	task     Task
	entryID  cron.EntryID
	lastRun  time.Time
	lastErr  string
	runCount int64
}

// New creates a new Scheduler. Cancelling ctx cancels running tasks.
func New(ctx context.Context, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	schedCtx, cancel := context.WithCancel(ctx)
	cronLogger := &cronSlogAdapter{logger: logger}

	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		),
	)

	return &Scheduler{
		cron:   c,
		ctx:    schedCtx,
		cancel: cancel,
		logger: logger,
		tasks:  make(map[string]*scheduledTask),
	}
}

// AddTask schedules task under id according to expr. It fails if the id is
// taken or the expression is invalid.
func (s *Scheduler) AddTask(id, expr string, task Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if id == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		return fmt.Errorf("task with ID %q already exists", id)
	}

	schedule, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("failed to parse schedule for task %q: %w", id, err)
	}

	st := &scheduledTask{id: id, expr: expr, task: task}
	st.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(st) }))
	s.tasks[id] = st

	s.logger.Info("task scheduled",
		slog.String("task_id", id),
		slog.String("schedule", expr),
		slog.Time("next_run", schedule.Next(time.Now())),
	)
	return nil
}

func (s *Scheduler) run(st *scheduledTask) {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.Lock()
	st.lastRun = time.Now()
	st.runCount++
	s.mu.Unlock()

	start := time.Now()
	err := st.task.Run(s.ctx)
	duration := time.Since(start)

	s.mu.Lock()
	st.lastErr = ""
	if err != nil {
		st.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled task failed",
			slog.String("task_id", st.id),
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
		)
		return
	}
	s.logger.Debug("scheduled task completed",
		slog.String("task_id", st.id),
		slog.Duration("duration", duration),
	)
}

// Start begins running tasks on their schedules.
func (s *Scheduler) Start() error {
	s.mu.RLock()
	count := len(s.tasks)
	s.mu.RUnlock()

	if count == 0 {
		s.logger.Warn("starting scheduler with no tasks")
	}
	s.logger.Info("starting scheduler", slog.Int("task_count", count))
	s.cron.Start()
	return nil
}

// Stop stops scheduling new runs and waits for running tasks to return.
func (s *Scheduler) Stop() error {
	s.logger.Info("stopping scheduler")

	cronStopCtx := s.cron.Stop()
	<-cronStopCtx.Done()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// TaskStats describes one scheduled task.
type TaskStats struct {
	TaskID    string    `json:"task_id"`
	Schedule  string    `json:"schedule"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	RunCount  int64     `json:"run_count"`
	LastError string    `json:"last_error,omitempty"`
}

// Stats returns statistics for a task.
func (s *Scheduler) Stats(id string) (*TaskStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.tasks[id]
	if !exists {
		return nil, false
	}
	return s.stats(st), true
}

// AllStats returns statistics for every task.
func (s *Scheduler) AllStats() []*TaskStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*TaskStats, 0, len(s.tasks))
	for _, st := range s.tasks {
		out = append(out, s.stats(st))
	}
	return out
}

func (s *Scheduler) stats(st *scheduledTask) *TaskStats {
	var next time.Time
	if entry := s.cron.Entry(st.entryID); entry.ID != 0 {
		next = entry.Next
	}
	return &TaskStats{
		TaskID:    st.id,
		Schedule:  st.expr,
		LastRun:   st.lastRun,
		NextRun:   next,
		RunCount:  st.runCount,
		LastError: st.lastErr,
	}
}

// cronSlogAdapter adapts slog.Logger to cron.Logger interface.
type cronSlogAdapter struct {
	logger *slog.Logger
}

func (a *cronSlogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a *cronSlogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := make([]any, 0, len(keysAndValues)+1)
	attrs = append(attrs, slog.String("error", err.Error()))
	attrs = append(attrs, keysAndValues...)
	a.logger.Error(msg, attrs...)
}
