package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flow-activity/internal/activity"
	"flow-activity/internal/config"
	"flow-activity/internal/fixture"
	"flow-activity/internal/storage"
)

var (
	barsFile   string
	barsStart  string
	barsEnd    string
	barsWindow string
	barsNow    string
	barsCount  int
)

var barsCmd = &cobra.Command{
	Use:   "bars",
	Short: "Lay out a file of runs as activity bars",
	Long: `Read runs from a YAML or JSON file and print the slot layout.

Filled slots are printed as '#', empty slots as '.', followed by the run
placed in each filled slot.

Examples:
  # Last 24 hours across 40 bars
  flow-activity bars --file runs.yaml --bars 40

  # Fixed window, evaluated as if it were a given instant
  flow-activity bars --file runs.yaml --start 2025-03-01T00:00:00Z --end 2025-03-02T00:00:00Z --now 2025-03-01T12:00:00Z
`,
	RunE: runBars,
}

func init() {
	barsCmd.Flags().StringVar(&barsFile, "file", "", "Runs file (YAML or JSON)")
	barsCmd.Flags().StringVar(&barsStart, "start", "", "Window start (RFC3339, default end minus --window)")
	barsCmd.Flags().StringVar(&barsEnd, "end", "", "Window end (RFC3339, default now)")
	barsCmd.Flags().StringVar(&barsWindow, "window", "24h", "Window length when --start is not set (e.g. 1h, 24h, 7d)")
	barsCmd.Flags().StringVar(&barsNow, "now", "", "Reference instant for orientation (RFC3339, default current time)")
	barsCmd.Flags().IntVar(&barsCount, "bars", activity.DefaultSlots, "Number of bars")
	_ = barsCmd.MarkFlagRequired("file")
}

func runBars(cmd *cobra.Command, args []string) error {
	now := time.Now()
	if barsNow != "" {
		t, err := time.Parse(time.RFC3339, barsNow)
		if err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
		now = t
	}

	w, err := resolveWindow(barsStart, barsEnd, barsWindow, now)
	if err != nil {
		return err
	}

	runs, err := fixture.Load(barsFile)
	if err != nil {
		return err
	}

	renderLayout(cmd.OutOrStdout(), runs, w, barsCount, now)
	return nil
}

func resolveWindow(start, end, window string, now time.Time) (activity.Window, error) {
	span, err := config.ParseWindow(window)
	if err != nil {
		return activity.Window{}, fmt.Errorf("invalid --window: %w", err)
	}

	w := activity.Window{End: now}
	if end != "" {
		if w.End, err = time.Parse(time.RFC3339, end); err != nil {
			return activity.Window{}, fmt.Errorf("invalid --end: %w", err)
		}
	}
	w.Start = w.End.Add(-span)
	if start != "" {
		if w.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return activity.Window{}, fmt.Errorf("invalid --start: %w", err)
		}
	}
	return w, nil
}

// renderLayout prints the slots for runs in the same order the API uses.
func renderLayout(out io.Writer, runs []storage.Run, w activity.Window, n int, now time.Time) {
	storage.SortNewestFirst(runs)
	slots := activity.Bucketize(runs, w, n, now)

	var line strings.Builder
	for _, s := range slots {
		if s == nil {
			line.WriteByte('.')
		} else {
			line.WriteByte('#')
		}
	}

	orientation := "historical"
	if w.Forward(now) {
		orientation = "forward"
	}
	fmt.Fprintf(out, "%s\n", line.String())
	fmt.Fprintf(out, "%s window, %d of %d slots filled, %d runs\n", orientation, activity.Filled(slots), len(slots), len(runs))

	for i, s := range slots {
		if s == nil {
			continue
		}
		at, _ := s.EffectiveTime()
		fmt.Fprintf(out, "%4d  %s  %s  %s\n", i, at.UTC().Format(time.RFC3339), s.ID, s.StateType)
	}
}
