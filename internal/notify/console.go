package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Console prints the in-app popup text, preceded by a terminal bell.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Deliver(ctx context.Context, r Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.out, "\a\n*** REMINDER ***\n%s\n\n", r.Popup())
	return err
}
