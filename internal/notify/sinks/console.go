package sinks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/logrusorgru/aurora"

	"github.com/JakeFAU/geo-report-client/internal/notify"
)

// ConsoleSink prints notifications as one-line colored toasts.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
	au aurora.Aurora
}

// NewConsoleSink writes to w, with ANSI colors when colors is true.
func NewConsoleSink(w io.Writer, colors bool) *ConsoleSink {
	return &ConsoleSink{w: w, au: aurora.NewAurora(colors)}
}

// Consume prints every notification in the batch.
func (s *ConsoleSink) Consume(_ context.Context, batch []notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range batch {
		var line aurora.Value
		switch n.Kind {
		case notify.KindCompleted:
			line = s.au.Green("> Success! " + n.Title)
		case notify.KindFailed:
			line = s.au.Red("> Error! " + n.Title)
		default:
			line = s.au.Cyan("> " + n.Title)
		}
		if _, err := fmt.Fprintln(s.w, line); err != nil {
			return fmt.Errorf("write notification: %w", err)
		}
		if n.Detail != "" && n.Kind.Terminal() {
			if _, err := fmt.Fprintln(s.w, s.au.BrightBlack("  "+n.Detail)); err != nil {
				return fmt.Errorf("write notification detail: %w", err)
			}
		}
	}
	return nil
}

// Close implements notify.Sink; it performs no action.
func (s *ConsoleSink) Close(context.Context) error {
	return nil
}
