package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"taskbell/internal/applog"
	"taskbell/internal/clock"
	"taskbell/internal/notify"
	"taskbell/internal/task"
)

const DefaultInterval = time.Second

var ErrAlreadyRunning = errors.New("scheduler is already running")

// Claimer hands out due tasks exactly once. *task.Store implements it.
type Claimer interface {
	ClaimDue(now time.Time) (task.DueBatch, error)
}

type TickResult struct {
	At      time.Time
	Fired   []task.Task
	Skipped []string
	// Err is the persistence error of this tick, if any. Fired tasks were
	// still notified and stay reminded in memory.
	Err error
}

type Options struct {
	Store    Claimer
	Notifier notify.Notifier
	Clock    clock.Clock
	Interval time.Duration
	Logger   *log.Logger
}

// Scheduler scans for due reminders on a fixed cadence.
type Scheduler struct {
	store    Claimer
	notifier notify.Notifier
	clock    clock.Clock
	interval time.Duration
	logger   *log.Logger

	tickMu sync.Mutex
	warned map[string]bool

	mu        sync.Mutex
	observers []func(TickResult)
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(opts Options) (*Scheduler, error) {
	if opts.Store == nil {
		return nil, errors.New("scheduler: store is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("scheduler: notifier is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Scheduler{
		store:    opts.Store,
		notifier: opts.Notifier,
		clock:    clock.OrReal(opts.Clock),
		interval: opts.Interval,
		logger:   applog.Or(opts.Logger),
		warned:   map[string]bool{},
	}, nil
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

// Observe registers fn to run after every tick, on the scheduler goroutine.
func (s *Scheduler) Observe(fn func(TickResult)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Tick runs one scan. Concurrent calls are serialized.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.clock.Now()
	batch, err := s.store.ClaimDue(now)
	res := TickResult{At: now, Fired: batch.Claimed, Skipped: batch.Skipped, Err: err}

	for _, id := range batch.Skipped {
		if s.warned[id] {
			continue
		}
		s.warned[id] = true
		applog.Warn(s.logger, "reminder_time_unreadable", map[string]any{"task_id": id})
	}
	if err != nil {
		applog.Error(s.logger, "tick_save_failed", map[string]any{"error": err})
	}

	for _, t := range batch.Claimed {
		applog.Info(s.logger, "reminder_fired", map[string]any{
			"task_id":       t.ID,
			"reminder_time": t.ReminderTime.String(),
		})
		s.notifier.Notify(ctx, notify.ReminderFor(t))
	}

	s.mu.Lock()
	observers := append([]func(TickResult){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(res)
	}
	return res
}

// Run ticks immediately and then every interval until ctx ends. It returns
// nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	applog.Info(s.logger, "scheduler_started", map[string]any{"interval": s.interval.String()})

	s.Tick(ctx)

	// A slow tick makes the ticker drop ticks instead of queueing them.
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			applog.Info(s.logger, "scheduler_stopped", nil)
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Start runs the loop on its own goroutine until Stop or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.Run(ctx); err != nil {
			applog.Error(s.logger, "scheduler_run_failed", map[string]any{"error": err})
		}
	}()
	return nil
}

// Stop cancels a loop started with Start and waits for it to exit. Future
// ticks are not scheduled; nothing in flight is interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
