package app

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"taskbell/internal/applog"
	"taskbell/internal/clock"
	"taskbell/internal/config"
	"taskbell/internal/notify"
	"taskbell/internal/scheduler"
	"taskbell/internal/task"
)

type Options struct {
	Config *config.Config
	Logger *log.Logger
	// Stdout receives console reminders. Defaults to os.Stdout.
	Stdout io.Writer
	Clock  clock.Clock
	// Channels replaces the channels built from Config when non-nil.
	Channels []notify.Channel
	// Lock takes the store's cross-process lock before loading it. New
	// fails with task.ErrStoreBusy when another process holds it.
	Lock bool
}

// App is the engine wired from configuration: the store, the notification
// dispatcher and the scheduler that connects them.
type App struct {
	Config     *config.Config
	Clock      clock.Clock
	Store      *task.Store
	Dispatcher *notify.Dispatcher
	Scheduler  *scheduler.Scheduler

	// LoadErr is set when the store file was corrupt or unreadable at
	// startup. The store is usable and starts empty.
	LoadErr error

	logger *log.Logger
}

func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	logger := applog.Or(opts.Logger)
	clk := clock.OrReal(opts.Clock)
	cfg := opts.Config

	store, err := task.NewStore(task.Options{Path: cfg.StorePath(), Clock: clk, Logger: logger})
	if err != nil {
		return nil, err
	}
	if opts.Lock {
		if err := store.TryLock(); err != nil {
			return nil, err
		}
	}
	a := &App{Config: cfg, Clock: clk, Store: store, logger: logger}
	if err := store.Load(); err != nil {
		if !errors.Is(err, task.ErrCorruptStore) && !errors.Is(err, task.ErrPersistence) {
			_ = store.Unlock()
			return nil, err
		}
		a.LoadErr = err
		applog.Warn(logger, "store_load_failed", map[string]any{"path": store.Path(), "error": err})
	}

	channels := opts.Channels
	if channels == nil {
		channels, err = BuildChannels(cfg.Notify, opts.Stdout, logger)
		if err != nil {
			_ = store.Unlock()
			return nil, err
		}
	}
	a.Dispatcher = notify.NewDispatcher(logger, cfg.Notify.Timeout, channels...)

	a.Scheduler, err = scheduler.New(scheduler.Options{
		Store:    store,
		Notifier: a.Dispatcher,
		Clock:    clk,
		Interval: cfg.Scheduler.Interval,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Unlock()
		return nil, err
	}

	applog.Info(logger, "app_ready", map[string]any{
		"store":    store.Path(),
		"tasks":    len(store.List()),
		"channels": a.Dispatcher.Channels(),
		"interval": a.Scheduler.Interval().String(),
	})
	return a, nil
}

// BuildChannels creates the enabled notification channels. A Telegram bot
// that cannot be reached at startup is logged and left out.
func BuildChannels(cfg config.NotifyConfig, stdout io.Writer, logger *log.Logger) ([]notify.Channel, error) {
	var channels []notify.Channel
	if cfg.Console.Enabled {
		channels = append(channels, notify.NewConsole(stdout))
	}
	if cfg.Sound.Enabled {
		channels = append(channels, notify.NewSound(notify.SoundOptions{
			File:      cfg.Sound.File,
			Player:    cfg.Sound.Player,
			Frequency: cfg.Sound.Frequency,
			Millis:    cfg.Sound.DurationMS,
		}))
	}
	if cfg.Desktop.Enabled {
		channels = append(channels, notify.NewDesktop(cfg.Desktop.Title))
	}
	if e := cfg.Email; e.Enabled {
		ch, err := notify.NewEmail(notify.EmailOptions{
			Host:     e.SMTPHost,
			Port:     e.SMTPPort,
			Username: e.SMTPUser,
			Password: e.SMTPPassword,
			From:     e.From,
			To:       e.To,
		})
		if err != nil {
			return nil, fmt.Errorf("email channel: %w", err)
		}
		channels = append(channels, ch)
	}
	if tg := cfg.Telegram; tg.Enabled {
		ch, err := notify.NewTelegram(tg.Token, tg.ChatID)
		if err != nil {
			applog.Warn(logger, "notify_channel_disabled", map[string]any{"channel": "telegram", "error": err})
		} else {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		applog.Warn(logger, "notify_no_channels", nil)
	}
	return channels, nil
}

// Close stops the scheduler, lets in-flight notifications finish and
// releases the store lock if it was held.
func (a *App) Close() error {
	a.Scheduler.Stop()
	a.Dispatcher.Wait()
	return a.Store.Unlock()
}
