package render

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"taskbell/internal/task"
)

const (
	HeaderLayout = "Monday, January 02, 2006 - 03:04 PM"
	shortIDLen   = 8
	// headerRow is the row index StyleFunc gets for the header; data rows
	// start at 1.
	headerRow = 0
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	columnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	doneStyle    = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("240"))
	emptyStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	statusStyles = map[task.Status]lipgloss.Style{
		task.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		task.StatusReminded:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		task.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
	}
)

// Header is the clock line shown above the list in the shell.
func Header(now time.Time) string {
	return headerStyle.Render(now.Format(HeaderLayout))
}

// ShortID is the id prefix shown in listings.
func ShortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// Text renders the list as a bordered table. Row numbers are 1-based and
// match list order, so they can be used as references.
func Text(tasks []task.Task) string {
	if len(tasks) == 0 {
		return emptyStyle.Render("No tasks.")
	}

	rows := make([][]string, 0, len(tasks))
	for i, t := range tasks {
		cells := []string{
			strconv.Itoa(i + 1),
			ShortID(t.ID),
			t.Description,
			t.Deadline.Display(),
			t.ReminderTime.Display(),
		}
		if t.Completed {
			for j := range cells {
				cells[j] = doneStyle.Render(cells[j])
			}
		}
		status := t.Status()
		cells = append(cells, statusStyles[status].Render(string(status)))
		rows = append(rows, cells)
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("#", "ID", "Task", "Deadline", "Reminder", "Status").
		Rows(rows...).
		StyleFunc(cellStyleFor)
	return tbl.Render()
}

func cellStyleFor(row, _ int) lipgloss.Style {
	if row == headerRow {
		return columnStyle
	}
	return cellStyle
}
