package render

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"taskbell/internal/task"
)

// Agenda is a standalone HTML page listing tasks in the given order.
func Agenda(tasks []task.Task, now time.Time) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, agendaHead); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "<h1>Tasks</h1>\n<p class=\"now\">%s</p>\n", templ.EscapeString(now.Format(HeaderLayout))); err != nil {
			return err
		}
		if len(tasks) == 0 {
			_, err := io.WriteString(w, "<p class=\"empty\">No tasks.</p>\n</body>\n</html>\n")
			return err
		}

		if _, err := io.WriteString(w, "<table>\n<thead><tr><th>#</th><th>Task</th><th>Deadline</th><th>Reminder</th><th>Status</th></tr></thead>\n<tbody>\n"); err != nil {
			return err
		}
		for i, t := range tasks {
			if err := agendaRow(i+1, t).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</tbody>\n</table>\n</body>\n</html>\n")
		return err
	})
}

func agendaRow(n int, t task.Task) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		class := "pending"
		switch t.Status() {
		case task.StatusReminded:
			class = "reminded"
		case task.StatusCompleted:
			class = "completed"
		}
		_, err := fmt.Fprintf(w,
			"<tr class=\"%s\" data-id=\"%s\"><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			class,
			templ.EscapeString(t.ID),
			strconv.Itoa(n),
			templ.EscapeString(t.Description),
			templ.EscapeString(t.Deadline.Display()),
			templ.EscapeString(t.ReminderTime.Display()),
			templ.EscapeString(string(t.Status())),
		)
		return err
	})
}

func WriteHTML(ctx context.Context, w io.Writer, tasks []task.Task, now time.Time) error {
	return Agenda(tasks, now).Render(ctx, w)
}

const agendaHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Tasks</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; }
tr.completed td { text-decoration: line-through; color: #888; }
tr.reminded td:last-child { color: #1e6fd9; }
.now { color: #555; }
</style>
</head>
<body>
`
