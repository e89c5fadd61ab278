package notify

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"taskbell/internal/applog"
	"taskbell/internal/task"
)

const DefaultTimeout = 30 * time.Second

// Reminder is what a channel gets to work with: a read-only snapshot of the
// due task.
type Reminder struct {
	TaskID      string
	Description string
	// Deadline is already formatted as DD/MM HH:MM.
	Deadline string
}

func ReminderFor(t task.Task) Reminder {
	return Reminder{
		TaskID:      t.ID,
		Description: t.Description,
		Deadline:    t.Deadline.Display(),
	}
}

func (r Reminder) Popup() string {
	return fmt.Sprintf("Task: %s\n\nDeadline: %s", r.Description, r.Deadline)
}

func (r Reminder) Toast() string {
	return fmt.Sprintf("Reminder for '%s'! Deadline is at %s.", r.Description, r.Deadline)
}

// Notifier is the scheduler's view of notification delivery. It never
// reports failure.
type Notifier interface {
	Notify(ctx context.Context, r Reminder)
}

type Channel interface {
	Name() string
	Deliver(ctx context.Context, r Reminder) error
}

// Dispatcher fans a reminder out to every channel on its own goroutine.
// Errors and panics are logged per channel and go no further.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	logger   *log.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(logger *log.Logger, timeout time.Duration, channels ...Channel) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
		logger:   applog.Or(logger),
	}
}

func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, ch.Name())
	}
	return out
}

func (d *Dispatcher) Notify(ctx context.Context, r Reminder) {
	// In-flight deliveries outlive a cancelled caller, bounded by timeout.
	base := context.WithoutCancel(ctx)
	for _, ch := range d.channels {
		d.wg.Add(1)
		go d.deliver(base, ch, r)
	}
}

// Wait blocks until every delivery started so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, r Reminder) {
	defer d.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			applog.Error(d.logger, "notify_channel_panic", map[string]any{
				"channel": ch.Name(),
				"task_id": r.TaskID,
				"panic":   fmt.Sprint(rec),
				"stack":   string(debug.Stack()),
			})
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := ch.Deliver(ctx, r); err != nil {
		applog.Warn(d.logger, "notify_channel_failed", map[string]any{
			"channel": ch.Name(),
			"task_id": r.TaskID,
			"error":   err,
		})
	}
}

// blocking runs fn and gives up waiting when ctx ends. fn keeps running in
// the background in that case; the libraries behind it take no context.
func blocking(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
