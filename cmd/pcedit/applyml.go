package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/pcedit"
	"github.com/hupe1980/pcedit/oplog"
	"github.com/hupe1980/pcedit/overlay"
)

func newApplyMLCmd(g *globalFlags) *cobra.Command {
	var (
		src         sourceFlags
		mlURL       string
		sessionID   string
		datasetPath string
		classes     []string
		modelType   string
		checkpoint  string
		dryRun      bool
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "apply-ml DATASET",
		Short: "Run an ML preview and delete the selected classes through a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if mlURL != "" {
				cfg.API.MLBaseURL = mlURL
			}
			if cfg.API.MLBaseURL == "" {
				return fmt.Errorf("no ML API configured, use --ml-url or api.mlBaseURL")
			}
			if err := requireAPI(cfg); err != nil {
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
				pcedit.WithBackend(oplog.NewHTTPBackend(cfg.API.BaseURL, oplog.WithHTTPClient(httpClient(cfg)))),
				pcedit.WithMLClient(overlay.NewClient(cfg.API.MLBaseURL)),
			)...)
			if err != nil {
				return err
			}
			defer ed.Close()

			out := cmd.OutOrStdout()
			if err := ed.Load(ctx, args[0], nil); err != nil {
				return err
			}
			if err := ed.Wait(ctx); err != nil {
				return err
			}
			if err := ed.OpenSession(ctx, sessionID); err != nil {
				return err
			}

			n, err := ed.PreviewOverlay(ctx, overlay.PreviewRequest{
				DatasetPath:   datasetPath,
				TargetClasses: classes,
				ModelType:     modelType,
				Checkpoint:    checkpoint,
			}, nilIfEmpty(classes))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "preview selects %d points\n", n)
			if dryRun || n == 0 {
				return nil
			}

			res, err := ed.ApplyOverlay(ctx)
			if err != nil {
				return err
			}
			id, _, _ := ed.Session()
			fmt.Fprintf(out, "session %s: %d operations accepted, %d indices, version %d\n",
				id, res.Accepted, res.Indices, res.Version)
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().StringVar(&mlURL, "ml-url", "", "ML API base URL (overrides api.mlBaseURL)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session to append to; empty creates one")
	cmd.Flags().StringVar(&datasetPath, "dataset-path", "", "dataset path as seen by the ML service")
	cmd.Flags().StringSliceVar(&classes, "classes", nil, "classes to delete; empty uses the preview selection")
	cmd.Flags().StringVar(&modelType, "model-type", "", "segmentation model")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "model checkpoint")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report the preview")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "give up after this long")
	return cmd
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
