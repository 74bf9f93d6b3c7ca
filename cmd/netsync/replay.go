package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"driftpursuit/netsync/internal/interp"
	"driftpursuit/netsync/internal/replay"
)

func replayCmd() *cobra.Command {
	var (
		mode  string
		step  time.Duration
		delay time.Duration
		image string
		size  int
	)
	cmd := &cobra.Command{
		Use:   "replay <session-dir>",
		Short: "Print the interpolated trajectories of a recorded session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := interp.ParseMode(mode)
			if !ok {
				return fmt.Errorf("unknown interpolation %q", mode)
			}
			loader, err := replay.Open(args[0])
			if err != nil {
				return err
			}
			frames, err := loader.Playback(replay.PlaybackOptions{Mode: m, Step: step, Delay: delay})
			if err != nil {
				return err
			}
			if image != "" {
				if err := writePlot(image, frames, size); err != nil {
					return err
				}
			}
			header := loader.Header()
			fmt.Fprintf(cmd.OutOrStdout(), "session %q: %d records, fixed dt %dms, snapshot interval %dms\n",
				header.SessionID, len(loader.Records()), header.FixedDtMs, header.SnapshotIntervalMs)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "render_ms\teid\ttick\tx\ty\tori\tspeed\tcolor")
			for _, f := range frames {
				for _, s := range f.States {
					fmt.Fprintf(w, "%.0f\t%d\t%d\t%.3f\t%.3f\t%.3f\t%.3f\t#%06x\n",
						f.RenderMs, s.EID, s.Tick, s.X, s.Y, s.Ori, s.Speed, s.Color)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&mode, "interpolation", "linear", "linear or quadratic")
	cmd.Flags().DurationVar(&step, "step", 0, "render cadence; defaults to the recorded fixed step")
	cmd.Flags().DurationVar(&delay, "delay", 0, "how far rendering trails server time; defaults to the snapshot interval")
	cmd.Flags().StringVar(&image, "png", "", "also plot the trajectories to this PNG file")
	cmd.Flags().IntVar(&size, "size", 800, "edge length of the PNG plot in pixels")
	return cmd
}

func writePlot(path string, frames []replay.Frame, size int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot: %w", err)
	}
	if err := replay.WritePNG(f, frames, replay.PlotOptions{Width: size, Height: size}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode plot: %w", err)
	}
	return f.Close()
}
