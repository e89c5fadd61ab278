package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"taskbell/internal/app"
	"taskbell/internal/config"
	"taskbell/internal/notify"
	"taskbell/internal/task"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// env is what every command gets: the merged configuration and the
// process streams.
type env struct {
	cfg     *config.Config
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	logger  *log.Logger
	verbose bool
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// errHelp means usage was already printed on request.
var errHelp = errors.New("help requested")

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("taskbell", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }
	configPath := fs.String("config", "", "config file (.yaml, .yml or .toml)")
	dataDir := fs.String("data-dir", "", "directory holding the task file (overrides data_dir)")
	verbose := fs.Bool("v", false, "write JSON log lines to stderr")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		printUsage(stderr)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "taskbell: config:", err)
		return 1
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logOut := io.Discard
	if *verbose {
		logOut = stderr
	}
	e := &env{
		cfg:     cfg,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		logger:  log.New(logOut, "", 0),
		verbose: *verbose,
	}
	return exitCode(stderr, dispatch(ctx, e, fs.Arg(0), fs.Args()[1:]))
}

func dispatch(ctx context.Context, e *env, name string, args []string) error {
	switch name {
	case "run":
		return cmdRun(ctx, e, args)
	case "backup":
		return cmdBackup(e, args)
	case "restore":
		return cmdRestore(e, args)
	case "help":
		printUsage(e.stdout)
		return nil
	}
	if !isTaskCommand(name) {
		return usageErrorf("unknown command %q", name)
	}

	// One-shot commands never notify, so no channels are built.
	a, err := app.New(app.Options{
		Config:   e.cfg,
		Logger:   e.logger,
		Stdout:   e.stdout,
		Channels: []notify.Channel{},
		Lock:     true,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	warnLoad(e, a)

	c := newCLI(a, e.stdout, e.stderr, stdinConfirm(e.stdin, e.stdout))
	return c.exec(ctx, name, args)
}

func warnLoad(e *env, a *app.App) {
	if a.LoadErr != nil {
		fmt.Fprintf(e.stderr, "warning: %v (starting with an empty list)\n", a.LoadErr)
	}
}

func exitCode(stderr io.Writer, err error) int {
	var ue usageError
	switch {
	case err == nil, errors.Is(err, errHelp):
		return 0
	case errors.As(err, &ue), errors.Is(err, task.ErrValidation):
		fmt.Fprintln(stderr, "taskbell:", err)
		return 2
	case errors.Is(err, task.ErrStoreBusy):
		fmt.Fprintln(stderr, "taskbell:", err, "(is `taskbell run` active? use its shell instead)")
		return 1
	default:
		fmt.Fprintln(stderr, "taskbell:", err)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: taskbell [-config FILE] [-data-dir DIR] [-v] <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  add [-hours N] [-minutes N] DD/MM HH:MM description")
	fmt.Fprintln(w, "  list")
	fmt.Fprintln(w, "  edit REF description")
	fmt.Fprintln(w, "  done REF                 toggle completed")
	fmt.Fprintln(w, "  reset REF                re-arm a fired reminder")
	fmt.Fprintln(w, "  rm [-y] REF")
	fmt.Fprintln(w, "  sort                     order by deadline")
	fmt.Fprintln(w, "  export -html FILE | -ics FILE   (FILE may be -)")
	fmt.Fprintln(w, "  run                      scheduler plus interactive shell")
	fmt.Fprintln(w, "  backup [-out FILE] [-verify]")
	fmt.Fprintln(w, "  restore [-force] -archive FILE")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "REF is a row number from list, a task id or a unique id prefix.")
}
