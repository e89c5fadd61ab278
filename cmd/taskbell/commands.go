package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"taskbell/internal/app"
	"taskbell/internal/render"
	"taskbell/internal/task"
)

var taskCommands = map[string]bool{
	"add": true, "list": true, "ls": true, "edit": true, "done": true,
	"reset": true, "rm": true, "sort": true, "export": true,
}

func isTaskCommand(name string) bool { return taskCommands[name] }

// cli runs the task commands against one engine. The shell reuses it with
// interactive set, which adds the clock header and redraws after changes.
type cli struct {
	app         *app.App
	out         io.Writer
	errOut      io.Writer
	confirm     func(prompt string) bool
	interactive bool
}

func newCLI(a *app.App, out, errOut io.Writer, confirm func(string) bool) *cli {
	return &cli{app: a, out: out, errOut: errOut, confirm: confirm}
}

func (c *cli) exec(ctx context.Context, name string, args []string) error {
	var err error
	mutated := true
	switch name {
	case "add":
		err = c.add(args)
	case "list", "ls":
		mutated = false
		err = c.list()
	case "edit":
		err = c.edit(args)
	case "done":
		err = c.done(args)
	case "reset":
		err = c.reset(args)
	case "rm":
		err = c.remove(args)
	case "sort":
		err = c.sort()
	case "export":
		mutated = false
		err = c.export(ctx, args)
	default:
		return usageErrorf("unknown command %q", name)
	}
	if err == nil && mutated && c.interactive {
		err = c.list()
	}
	return err
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return usageError{msg: err.Error()}
	}
	return nil
}

func (c *cli) add(args []string) error {
	fs := c.flags("add")
	hours := fs.Int("hours", 0, "reminder lead time, hours")
	minutes := fs.Int("minutes", 0, "reminder lead time, minutes")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 3 {
		return usageErrorf("usage: add [-hours N] [-minutes N] DD/MM HH:MM description")
	}

	deadline := fs.Arg(0) + " " + fs.Arg(1)
	desc := strings.Join(fs.Args()[2:], " ")
	t, err := c.app.Store.Add(desc, deadline, task.LeadTime{Hours: *hours, Minutes: *minutes})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Added %s %q: deadline %s, reminder %s\n",
		render.ShortID(t.ID), t.Description, t.Deadline.Display(), t.ReminderTime.Display())
	return nil
}

func (c *cli) list() error {
	var b strings.Builder
	if c.interactive {
		b.WriteString(render.Header(c.app.Clock.Now()))
		b.WriteString("\n")
	}
	b.WriteString(render.Text(c.app.Store.List()))
	b.WriteString("\n")
	_, err := io.WriteString(c.out, b.String())
	return err
}

func (c *cli) edit(args []string) error {
	if len(args) < 2 {
		return usageErrorf("usage: edit REF description")
	}
	id, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	t, err := c.app.Store.Edit(id, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Updated %s: %q\n", render.ShortID(t.ID), t.Description)
	return nil
}

func (c *cli) done(args []string) error {
	if len(args) != 1 {
		return usageErrorf("usage: done REF")
	}
	id, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	t, err := c.app.Store.ToggleCompleted(id)
	if err != nil {
		return err
	}
	state := "completed"
	if !t.Completed {
		state = "reopened"
	}
	fmt.Fprintf(c.out, "Marked %s %s\n", render.ShortID(t.ID), state)
	return nil
}

func (c *cli) reset(args []string) error {
	if len(args) != 1 {
		return usageErrorf("usage: reset REF")
	}
	id, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	t, changed, err := c.app.Store.ResetReminder(id)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Fprintf(c.out, "Reminder for %s has not fired yet\n", render.ShortID(t.ID))
		return nil
	}
	fmt.Fprintf(c.out, "Reminder for %s re-armed for %s\n", render.ShortID(t.ID), t.ReminderTime.Display())
	return nil
}

func (c *cli) remove(args []string) error {
	fs := c.flags("rm")
	yes := fs.Bool("y", false, "do not ask for confirmation")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErrorf("usage: rm [-y] REF")
	}
	id, err := c.resolve(fs.Arg(0))
	if err != nil {
		return err
	}
	t, err := c.app.Store.Get(id)
	if err != nil {
		return err
	}
	if !*yes && !c.confirm(fmt.Sprintf("Delete %q? [y/N] ", t.Description)) {
		fmt.Fprintln(c.out, "Kept.")
		return nil
	}
	if err := c.app.Store.Remove(id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Deleted %s\n", render.ShortID(id))
	return nil
}

func (c *cli) sort() error {
	if err := c.app.Store.SortByDeadline(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Sorted %d tasks by deadline\n", len(c.app.Store.List()))
	return nil
}

func (c *cli) export(ctx context.Context, args []string) error {
	fs := c.flags("export")
	htmlPath := fs.String("html", "", "write an HTML agenda to FILE")
	icsPath := fs.String("ics", "", "write an iCalendar feed to FILE")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if (*htmlPath == "") == (*icsPath == "") || fs.NArg() != 0 {
		return usageErrorf("usage: export -html FILE | -ics FILE")
	}

	tasks := c.app.Store.List()
	now := c.app.Clock.Now()
	if *icsPath != "" {
		return c.writeOut(*icsPath, func(w io.Writer) error {
			_, err := io.WriteString(w, task.BuildCalendarICS(tasks, now))
			return err
		})
	}
	return c.writeOut(*htmlPath, func(w io.Writer) error {
		return render.WriteHTML(ctx, w, tasks, now)
	})
}

// writeOut sends fn's output to path, or to the command output for "-".
func (c *cli) writeOut(path string, fn func(io.Writer) error) error {
	if path == "-" {
		return fn(c.out)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Wrote %s\n", path)
	return nil
}

func (c *cli) resolve(ref string) (string, error) {
	return resolveRef(c.app.Store.List(), ref)
}

// resolveRef turns a row number, full id or unique id prefix into an id.
// Row numbers win over prefixes.
func resolveRef(tasks []task.Task, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", usageErrorf("task reference is required")
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(tasks) {
		return tasks[n-1].ID, nil
	}

	var matches []string
	for _, t := range tasks {
		if t.ID == ref {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", task.ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return "", usageErrorf("%q matches %d tasks, use more of the id", ref, len(matches))
	}
}

func stdinConfirm(in io.Reader, out io.Writer) func(string) bool {
	r := bufio.NewReader(in)
	return func(prompt string) bool {
		fmt.Fprint(out, prompt)
		line, _ := r.ReadString('\n')
		return isYes(line)
	}
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
