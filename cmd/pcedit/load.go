package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/pcedit"
	"github.com/hupe1980/pcedit/event"
)

func newLoadCmd(g *globalFlags) *cobra.Command {
	var (
		src     sourceFlags
		timeout time.Duration
		every   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "load DATASET",
		Short: "Stream a dataset and report progress and framing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			source, opts, err := src.open(ctx, cfg)
			if err != nil {
				return err
			}
			ed, err := pcedit.New(source, append(opts,
				pcedit.WithConfig(cfg),
				pcedit.WithLogger(newLogger(cfg.Log)),
			)...)
			if err != nil {
				return err
			}
			defer ed.Close()

			return runLoad(ctx, cmd.OutOrStdout(), ed, args[0], every)
		},
	}
	src.register(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up after this long")
	cmd.Flags().DurationVar(&every, "progress", time.Second, "progress report interval")
	return cmd
}

func runLoad(ctx context.Context, w io.Writer, ed *pcedit.Editor, datasetID string, every time.Duration) error {
	if err := ed.Load(ctx, datasetID, nil); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- ed.Wait(ctx) }()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				return err
			}
			report(w, ed)
			return nil
		case <-ticker.C:
			printProgress(w, ed.Progress())
		}
	}
}

func printProgress(w io.Writer, p event.LoadProgress) {
	fmt.Fprintf(w, "tiles %d/%d (failed %d), renderable %d/%d points\n",
		p.TilesLoaded, p.TilesTotal, p.TilesFailed, p.Renderable, p.PointsTotal)
}

func report(w io.Writer, ed *pcedit.Editor) {
	printProgress(w, ed.Progress())
	for id, err := range ed.Failed() {
		fmt.Fprintf(w, "  failed %s: %v\n", id, err)
	}
	if pose, ok := ed.Camera(); ok {
		fmt.Fprintf(w, "camera position=%v target=%v near=%.2f far=%.1f fallback=%t\n",
			pose.Position, pose.Target, pose.Near, pose.Far, pose.Fallback)
	}
}
