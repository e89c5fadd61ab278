package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"taskbell/internal/app"
	"taskbell/internal/applog"
	"taskbell/internal/scheduler"
)

const prompt = "> "

// syncWriter serializes writes from the shell, the console channel and the
// scheduler observer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// cmdRun holds the store lock, runs the scheduler and reads shell commands
// from stdin until quit, EOF or a signal.
func cmdRun(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return usageErrorf("usage: run")
	}
	out := &syncWriter{w: e.stdout}

	a, err := app.New(app.Options{
		Config: e.cfg,
		Logger: e.logger,
		Stdout: out,
		Lock:   true,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	warnLoad(e, a)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sh := &shell{lines: readLines(e.stdin), out: out}
	sh.cli = newCLI(a, out, out, sh.confirm(ctx))
	sh.cli.interactive = true

	a.Scheduler.Observe(func(r scheduler.TickResult) {
		if len(r.Fired) > 0 {
			sh.redraw()
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Scheduler.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return sh.loop(gctx)
	})
	err = g.Wait()
	applog.Info(e.logger, "shell_closed", nil)
	return err
}

type shell struct {
	cli   *cli
	lines <-chan string
	out   io.Writer
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

func (s *shell) loop(ctx context.Context) error {
	s.redraw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-s.lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				fmt.Fprint(s.out, prompt)
				continue
			}
			switch fields[0] {
			case "quit", "exit", "q":
				return nil
			case "help", "?":
				printShellHelp(s.out)
			default:
				if err := s.cli.exec(ctx, fields[0], fields[1:]); err != nil && !errors.Is(err, errHelp) {
					fmt.Fprintln(s.out, "error:", err)
				}
			}
			fmt.Fprint(s.out, prompt)
		}
	}
}

// redraw prints the clock header, the list and a fresh prompt as a single
// write.
func (s *shell) redraw() {
	var b strings.Builder
	c := *s.cli
	c.out = &b
	_ = c.list()
	b.WriteString(prompt)
	_, _ = io.WriteString(s.out, "\n"+b.String())
}

func (s *shell) confirm(ctx context.Context) func(string) bool {
	return func(question string) bool {
		fmt.Fprint(s.out, question)
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-s.lines:
			return ok && isYes(line)
		}
	}
}

func printShellHelp(w io.Writer) {
	fmt.Fprintln(w, "  add [-hours N] [-minutes N] DD/MM HH:MM description")
	fmt.Fprintln(w, "  list | edit REF text | done REF | reset REF | rm [-y] REF | sort")
	fmt.Fprintln(w, "  export -html FILE | -ics FILE")
	fmt.Fprintln(w, "  quit")
}
