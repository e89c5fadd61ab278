package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"taskbell/internal/task"
)

type recordingChannel struct {
	name string
	err  error
	mu   sync.Mutex
	got  []Reminder
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(_ context.Context, r Reminder) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, r)
	return c.err
}

func (c *recordingChannel) reminders() []Reminder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Reminder(nil), c.got...)
}

type panickingChannel struct{}

func (panickingChannel) Name() string { return "panics" }

func (panickingChannel) Deliver(context.Context, Reminder) error { panic("speaker on fire") }

type slowChannel struct{}

func (slowChannel) Name() string { return "slow" }

func (slowChannel) Deliver(ctx context.Context, _ Reminder) error {
	<-ctx.Done()
	return ctx.Err()
}

var sample = Reminder{TaskID: "t1", Description: "water plants", Deadline: "25/12 09:00"}

func TestReminderFor(t *testing.T) {
	tk, err := task.NewTask("water plants", time.Date(2026, 12, 25, 9, 0, 0, 0, time.Local), task.LeadTime{Hours: 1})
	require.NoError(t, err)

	r := ReminderFor(tk)
	assert.Equal(t, tk.ID, r.TaskID)
	assert.Equal(t, "water plants", r.Description)
	assert.Equal(t, "25/12 09:00", r.Deadline)
	assert.Equal(t, "Task: water plants\n\nDeadline: 25/12 09:00", r.Popup())
	assert.Equal(t, "Reminder for 'water plants'! Deadline is at 25/12 09:00.", r.Toast())
}

func TestDispatcher_FailuresAreIsolated(t *testing.T) {
	var logs bytes.Buffer
	failing := &recordingChannel{name: "failing", err: errors.New("no audio device")}
	ok := &recordingChannel{name: "ok"}

	d := NewDispatcher(log.New(&logs, "", 0), time.Second, failing, panickingChannel{}, ok)
	d.Notify(context.Background(), sample)
	d.Wait()

	assert.Equal(t, []Reminder{sample}, failing.reminders())
	assert.Equal(t, []Reminder{sample}, ok.reminders())
	assert.Contains(t, logs.String(), `"msg":"notify_channel_failed"`)
	assert.Contains(t, logs.String(), `"channel":"failing"`)
	assert.Contains(t, logs.String(), `"msg":"notify_channel_panic"`)

	// Later reminders still go through.
	d.Notify(context.Background(), sample)
	d.Wait()
	assert.Len(t, ok.reminders(), 2)
}

func TestDispatcher_TimeoutBoundsSlowChannel(t *testing.T) {
	var logs bytes.Buffer
	d := NewDispatcher(log.New(&logs, "", 0), 20*time.Millisecond, slowChannel{})

	d.Notify(context.Background(), sample)
	d.Wait()

	assert.Contains(t, logs.String(), "deadline exceeded")
}

func TestDispatcher_OutlivesCancelledCaller(t *testing.T) {
	ch := &recordingChannel{name: "ok"}
	d := NewDispatcher(log.New(io.Discard, "", 0), time.Second, ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Notify(ctx, sample)
	d.Wait()

	assert.Len(t, ch.reminders(), 1)
}

func TestDispatcher_Channels(t *testing.T) {
	d := NewDispatcher(nil, 0, NewConsole(io.Discard), &recordingChannel{name: "x"})
	assert.Equal(t, []string{"console", "x"}, d.Channels())
	assert.Equal(t, DefaultTimeout, d.timeout)
}

func TestConsole(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, NewConsole(&out).Deliver(context.Background(), sample))

	assert.Contains(t, out.String(), "REMINDER")
	assert.Contains(t, out.String(), "Task: water plants")
	assert.Contains(t, out.String(), "Deadline: 25/12 09:00")
}

func TestSoundAndDesktop(t *testing.T) {
	s := NewSound(SoundOptions{})
	var gotFreq float64
	var gotMillis int
	s.beep = func(freq float64, millis int) error {
		gotFreq, gotMillis = freq, millis
		return nil
	}
	require.NoError(t, s.Deliver(context.Background(), sample))
	assert.Equal(t, float64(DefaultBeepFrequency), gotFreq)
	assert.Equal(t, DefaultBeepMillis, gotMillis)

	d := NewDesktop("")
	var title, msg string
	d.show = func(t, m string) error {
		title, msg = t, m
		return errors.New("no notification daemon")
	}
	err := d.Deliver(context.Background(), sample)
	assert.EqualError(t, err, "no notification daemon")
	assert.Equal(t, DefaultToastTitle, title)
	assert.Equal(t, sample.Toast(), msg)
}

func TestSound_FilePlaysAndFallsBackToBeep(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "reminder.wav")
	require.NoError(t, os.WriteFile(wav, []byte("RIFF"), 0o644))

	newSound := func(file string, playErr error) (*Sound, *[]string, *int) {
		s := NewSound(SoundOptions{File: file, Player: "paplay --volume 65536"})
		var played []string
		beeps := 0
		s.play = func(_ context.Context, player []string, f string) error {
			played = append(append(played, player...), f)
			return playErr
		}
		s.beep = func(float64, int) error {
			beeps++
			return nil
		}
		return s, &played, &beeps
	}

	s, played, beeps := newSound(wav, nil)
	require.NoError(t, s.Deliver(context.Background(), sample))
	assert.Equal(t, []string{"paplay", "--volume", "65536", wav}, *played)
	assert.Zero(t, *beeps)

	s, played, beeps = newSound(filepath.Join(t.TempDir(), "missing.wav"), nil)
	require.NoError(t, s.Deliver(context.Background(), sample))
	assert.Empty(t, *played)
	assert.Equal(t, 1, *beeps)

	s, played, beeps = newSound(wav, errors.New("no audio device"))
	require.NoError(t, s.Deliver(context.Background(), sample))
	assert.NotEmpty(t, *played)
	assert.Equal(t, 1, *beeps)
}

func TestDefaultPlayer_EndsWithFile(t *testing.T) {
	args := defaultPlayer("/tmp/alarm.wav")
	if len(args) == 0 {
		t.Skip("no default player on this platform")
	}
	assert.Contains(t, args[len(args)-1], "/tmp/alarm.wav")
}

type fakeMailer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmail(t *testing.T) {
	_, err := NewEmail(EmailOptions{Host: "smtp.example.com"})
	assert.Error(t, err)

	e, err := NewEmail(EmailOptions{Host: "smtp.example.com", Port: 587, From: "bell@example.com", To: []string{"me@example.com"}})
	require.NoError(t, err)

	mailer := &fakeMailer{}
	e.sender = mailer
	require.NoError(t, e.Deliver(context.Background(), sample))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"Reminder: water plants"}, mailer.sent[0].GetHeader("Subject"))
	assert.Equal(t, []string{"me@example.com"}, mailer.sent[0].GetHeader("To"))

	mailer.err = errors.New("connection refused")
	err = e.Deliver(context.Background(), sample)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "connection refused"))
}

type fakeBot struct {
	sent []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegram(t *testing.T) {
	_, err := NewTelegram("", 42)
	assert.Error(t, err)

	bot := &fakeBot{}
	tg := &Telegram{sender: bot, chatID: 42}
	require.NoError(t, tg.Deliver(context.Background(), sample))

	require.Len(t, bot.sent, 1)
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Contains(t, msg.Text, "water plants")
}
