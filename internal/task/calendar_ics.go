package task

import (
	"fmt"
	"strings"
	"time"
)

const icsLocalLayout = "20060102T150405"

// BuildCalendarICS exports open tasks as one-hour events at their deadline,
// each with a display alarm at the reminder time. Completed tasks and tasks
// with unreadable timestamps are left out.
func BuildCalendarICS(tasks []Task, now time.Time) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//taskbell//Reminder Export//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	}

	for _, t := range tasks {
		if t.Completed {
			continue
		}
		deadline, ok := t.Deadline.Time()
		if !ok {
			continue
		}
		remindAt, ok := t.ReminderTime.Time()
		if !ok {
			continue
		}

		lines = append(lines,
			"BEGIN:VEVENT",
			"UID:"+escapeICSText(fmt.Sprintf("task-%s@taskbell", t.ID)),
			"DTSTAMP:"+now.UTC().Format("20060102T150405Z"),
			"SUMMARY:"+escapeICSText(t.Description),
			"DTSTART:"+deadline.Format(icsLocalLayout),
			"DTEND:"+deadline.Add(time.Hour).Format(icsLocalLayout),
			"BEGIN:VALARM",
			"ACTION:DISPLAY",
			"DESCRIPTION:"+escapeICSText(t.Description),
			"TRIGGER:"+icsTrigger(deadline.Sub(remindAt)),
			"END:VALARM",
			"END:VEVENT",
		)
	}

	lines = append(lines, "END:VCALENDAR", "")
	return strings.Join(lines, "\r\n")
}

// icsTrigger renders a lead time as a negative RFC 5545 duration.
func icsTrigger(lead time.Duration) string {
	if lead <= 0 {
		return "PT0M"
	}
	mins := int(lead.Round(time.Minute) / time.Minute)
	h, m := mins/60, mins%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("-PT%dH%dM", h, m)
	case h > 0:
		return fmt.Sprintf("-PT%dH", h)
	default:
		return fmt.Sprintf("-PT%dM", m)
	}
}

func escapeICSText(s string) string {
	repl := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
		"\r", "\\n",
	)
	return repl.Replace(s)
}
