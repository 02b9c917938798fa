package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
	"github.com/JakeFAU/geo-report-client/internal/tracker"
)

type watchFlags struct {
	start bool
	label string
}

func newWatchCmd() *cobra.Command {
	var flags watchFlags
	cmd := &cobra.Command{
		Use:   "watch <analysis-id>...",
		Short: "Track analyses in the background until they finish.",
		Long: `Watch follows any number of analyses at once, printing progress as it
changes and a notification when each one starts, completes or fails. With
--start the analyses are started first; ids that fail to start are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd, args, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.start, "start", false, "start each analysis before tracking it")
	cmd.Flags().StringVar(&flags.label, "label", "", "group label shown in notifications instead of the id")
	return cmd
}

func watch(cmd *cobra.Command, ids []string, flags watchFlags) error {
	a := appFrom(cmd)
	p := newPrinter(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr := a.NewTracker()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tr.Close(closeCtx); err != nil {
			p.Warn("Tracker did not stop cleanly: %v", err)
		}
	}()

	var order []string
	for _, id := range ids {
		if flags.start {
			if err := a.Client().StartAnalysis(ctx, id); err != nil {
				p.Warn("%s: %s", id, analysis.NewStartError(id, err).Message)
				continue
			}
		}
		if tr.Track(id, id, flags.label) {
			order = append(order, id)
		}
	}
	if len(order) == 0 {
		return errors.New("no analyses to watch")
	}

	updates, unsubscribe := tr.Subscribe()
	defer unsubscribe()

	// Finished jobs are kept here because the tracker drops them after the
	// expiry delay, possibly before the others finish.
	finished := make(map[string]tracker.Job, len(order))
	seen := make(map[string]string)
	for {
		select {
		case <-ctx.Done():
			p.Warn("Stopped watching; analyses keep running on the backend")
			return nil
		case jobs, ok := <-updates:
			if !ok {
				return nil
			}
			printChanges(p, jobs, seen)
			for _, j := range jobs {
				if j.Terminal() {
					finished[j.ID] = j
				}
			}
			if len(finished) < len(order) {
				continue
			}
			final := make([]tracker.Job, 0, len(order))
			for _, id := range order {
				final = append(final, finished[id])
			}
			p.renderer().Jobs(final, time.Now())
			return failures(final)
		}
	}
}

// printChanges prints one line per job whose progress line differs from the
// last one printed.
func printChanges(p printer, jobs []tracker.Job, seen map[string]string) {
	for _, j := range jobs {
		line := fmt.Sprintf("%s %s %3.0f%% %s", j.ID, j.Status, j.Progress, j.Message)
		if seen[j.ID] == line {
			continue
		}
		seen[j.ID] = line
		p.Message("%s", line)
	}
}

func failures(jobs []tracker.Job) error {
	failed := 0
	for _, j := range jobs {
		if j.Status == analysis.StatusFailed {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d analyses failed", failed, len(jobs))
}
