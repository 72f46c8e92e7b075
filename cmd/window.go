package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"wingo/window"

	"github.com/spf13/cobra"
)

// WindowOptions holds flags for the window command.
type WindowOptions struct {
	Duration int
	Game     string
	At       string
	Count    int
}

// NewWindowCommand creates the window command.
func NewWindowCommand() *cobra.Command {
	opts := &WindowOptions{}

	cmd := &cobra.Command{
		Use:   "window",
		Short: "Print the round window for an instant",
		Long: `Compute the deterministic window (start, end, period) that contains an
instant for the given duration and game code. No store is needed.

Example:
  wingo window --duration 60 --game 10001 --at 2026-02-11T10:00:30Z --count 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printWindows(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Duration, "duration", 0, "round duration in seconds (required)")
	cmd.Flags().StringVar(&opts.Game, "game", "", "game code (required)")
	cmd.Flags().StringVar(&opts.At, "at", "", "RFC3339 instant (default now)")
	cmd.Flags().IntVar(&opts.Count, "count", 1, "number of consecutive windows to print")
	_ = cmd.MarkFlagRequired("duration")
	_ = cmd.MarkFlagRequired("game")

	return cmd
}

func printWindows(opts *WindowOptions, cmd *cobra.Command) error {
	at := time.Now().UTC()
	if opts.At != "" {
		parsed, err := time.Parse(time.RFC3339, opts.At)
		if err != nil {
			return fmt.Errorf("invalid --at %q: %w", opts.At, err)
		}
		at = parsed
	}
	if opts.Count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	w, err := window.Compute(opts.Duration, opts.Game, at)
	if err != nil {
		return err
	}
	windows := []window.Window{w}
	for len(windows) < opts.Count {
		if w, err = window.Next(opts.Duration, opts.Game, w); err != nil {
			return err
		}
		windows = append(windows, w)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, w := range windows {
		if err := enc.Encode(w); err != nil {
			return err
		}
	}
	return nil
}
