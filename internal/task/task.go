package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DeadlineInputLayout is the user-facing deadline format; the year is
	// implied from the clock at entry time.
	DeadlineInputLayout = "02/01 15:04"
	DisplayLayout       = "02/01 15:04"

	stampLayout      = "2006-01-02T15:04:05.999999"
	deadlineParseFmt = "2006 2/1 15:04"
)

var stampParseLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

type Status string

const (
	StatusPending   Status = "Pending"
	StatusReminded  Status = "Reminded"
	StatusCompleted Status = "Completed"
)

type Task struct {
	ID           string `json:"id"`
	Description  string `json:"task"`
	Deadline     Stamp  `json:"deadline"`
	ReminderTime Stamp  `json:"reminder_time"`
	Completed    bool   `json:"completed"`
	Reminded     bool   `json:"reminded"`
}

// LeadTime is how long before the deadline the reminder fires.
type LeadTime struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func (l LeadTime) Validate() error {
	if l.Hours < 0 || l.Minutes < 0 {
		return fmt.Errorf("%w: lead time must not be negative (got %dh%dm)", ErrValidation, l.Hours, l.Minutes)
	}
	return nil
}

// Before subtracts the lead time on the wall clock, so a DST change between
// reminder and deadline does not shift the reminder.
func (l LeadTime) Before(deadline time.Time) time.Time {
	y, mo, d := deadline.Date()
	h, mi, sec := deadline.Clock()
	return time.Date(y, mo, d, h-l.Hours, mi-l.Minutes, sec, deadline.Nanosecond(), deadline.Location())
}

func (l LeadTime) Duration() time.Duration {
	return time.Duration(l.Hours)*time.Hour + time.Duration(l.Minutes)*time.Minute
}

func (l LeadTime) String() string {
	return fmt.Sprintf("%dh%02dm", l.Hours, l.Minutes)
}

// NewTask validates the input and assigns a fresh id. The reminder fires
// lead before the deadline, possibly already in the past.
func NewTask(description string, deadline time.Time, lead LeadTime) (Task, error) {
	desc, err := NormalizeDescription(description)
	if err != nil {
		return Task{}, err
	}
	if deadline.IsZero() {
		return Task{}, fmt.Errorf("%w: deadline is required", ErrValidation)
	}
	if err := lead.Validate(); err != nil {
		return Task{}, err
	}

	return Task{
		ID:           uuid.NewString(),
		Description:  desc,
		Deadline:     At(deadline),
		ReminderTime: At(lead.Before(deadline)),
	}, nil
}

func NormalizeDescription(description string) (string, error) {
	desc := strings.TrimSpace(description)
	if desc == "" {
		return "", fmt.Errorf("%w: task description cannot be empty", ErrValidation)
	}
	return desc, nil
}

// ParseDeadline parses DD/MM HH:MM in the local zone using now's year.
func ParseDeadline(input string, now time.Time) (time.Time, error) {
	in := strings.TrimSpace(input)
	if in == "" {
		return time.Time{}, fmt.Errorf("%w: deadline is required (DD/MM HH:MM)", ErrValidation)
	}
	t, err := time.ParseInLocation(deadlineParseFmt, fmt.Sprintf("%d %s", now.Year(), in), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid deadline %q, use DD/MM HH:MM", ErrValidation, in)
	}
	return t, nil
}

func (t Task) Status() Status {
	switch {
	case t.Completed:
		return StatusCompleted
	case t.Reminded:
		return StatusReminded
	default:
		return StatusPending
	}
}

// Due reports whether the reminder should fire at now. ok is false when the
// stored reminder time cannot be interpreted.
func (t Task) Due(now time.Time) (due bool, ok bool) {
	if t.Completed || t.Reminded {
		return false, true
	}
	rt, ok := t.ReminderTime.Time()
	if !ok {
		return false, false
	}
	return !now.Before(rt), true
}

// Stamp is a zone-less local timestamp as persisted in the store file.
// Values that fail to parse are kept verbatim so a bad record survives a
// load/save cycle untouched.
type Stamp struct {
	t   time.Time
	raw string
	ok  bool
}

func At(t time.Time) Stamp {
	return Stamp{t: t, ok: true}
}

func ParseStamp(s string) Stamp {
	v := strings.TrimSpace(s)
	for _, layout := range stampParseLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return At(t)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return At(t.In(time.Local))
	}
	return Stamp{raw: s}
}

func (s Stamp) Time() (time.Time, bool) {
	return s.t, s.ok
}

func (s Stamp) Valid() bool { return s.ok }

// Display formats as DD/MM HH:MM, or returns the raw value when invalid.
func (s Stamp) Display() string {
	if !s.ok {
		return s.raw
	}
	return s.t.Format(DisplayLayout)
}

func (s Stamp) String() string {
	if !s.ok {
		return s.raw
	}
	return s.t.Format(stampLayout)
}

func (s Stamp) Equal(o Stamp) bool {
	if s.ok != o.ok {
		return false
	}
	if !s.ok {
		return s.raw == o.raw
	}
	return s.t.Equal(o.t)
}

func (s Stamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Stamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*s = Stamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	*s = ParseStamp(raw)
	return nil
}
