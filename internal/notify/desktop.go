package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/gen2brain/beeep"
)

const (
	DefaultToastTitle    = "To-Do Reminder"
	DefaultBeepFrequency = 1000
	DefaultBeepMillis    = 500
)

type SoundOptions struct {
	// File is an optional audio file played instead of the beep.
	File string
	// Player is the command that plays File, e.g. "paplay". Empty picks a
	// platform default.
	Player    string
	Frequency float64
	Millis    int
}

// Sound plays the alarm file when there is one and beeps otherwise, or
// when playback fails.
type Sound struct {
	file      string
	player    []string
	frequency float64
	millis    int
	beep      func(freq float64, millis int) error
	play      func(ctx context.Context, player []string, file string) error
}

func NewSound(opts SoundOptions) *Sound {
	if opts.Frequency <= 0 {
		opts.Frequency = DefaultBeepFrequency
	}
	if opts.Millis <= 0 {
		opts.Millis = DefaultBeepMillis
	}
	return &Sound{
		file:      strings.TrimSpace(opts.File),
		player:    strings.Fields(opts.Player),
		frequency: opts.Frequency,
		millis:    opts.Millis,
		beep:      beeep.Beep,
		play:      playFile,
	}
}

func (s *Sound) Name() string { return "sound" }

func (s *Sound) Deliver(ctx context.Context, _ Reminder) error {
	if s.file != "" {
		if _, err := os.Stat(s.file); err == nil {
			if err := s.play(ctx, s.player, s.file); err == nil {
				return nil
			}
		}
	}
	return blocking(ctx, func() error {
		return s.beep(s.frequency, s.millis)
	})
}

func playFile(ctx context.Context, player []string, file string) error {
	args := defaultPlayer(file)
	if len(player) > 0 {
		args = append(append([]string(nil), player...), file)
	}
	if len(args) == 0 {
		return errors.New("no audio player for " + runtime.GOOS)
	}
	if out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func defaultPlayer(file string) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"afplay", file}
	case "linux":
		return []string{"aplay", "-q", file}
	case "windows":
		quoted := strings.ReplaceAll(file, "'", "''")
		return []string{"powershell", "-NoProfile", "-Command", "(New-Object Media.SoundPlayer '" + quoted + "').PlaySync()"}
	}
	return nil
}

// Desktop raises an OS notification.
type Desktop struct {
	title string
	show  func(title, message string) error
}

func NewDesktop(title string) *Desktop {
	if title == "" {
		title = DefaultToastTitle
	}
	return &Desktop{
		title: title,
		show: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) Deliver(ctx context.Context, r Reminder) error {
	return blocking(ctx, func() error {
		return d.show(d.title, r.Toast())
	})
}
