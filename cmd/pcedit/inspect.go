package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"github.com/hupe1980/pcedit/pointbuf"
	"github.com/hupe1980/pcedit/tile"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Decode tile files and print their header and bounds",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := inspectFile(cmd.OutOrStdout(), path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func inspectFile(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p, err := tile.DecodeTile(tile.Tile{ID: filepath.Base(path)}, data)
	if err != nil {
		return err
	}

	box := pointbuf.EmptyBox()
	for i := 0; i < p.Count; i++ {
		box = box.Extend(mgl32.Vec3{p.Positions[3*i], p.Positions[3*i+1], p.Positions[3*i+2]})
	}

	fmt.Fprintf(w, "%s: version=%d compression=%s points=%d bytes=%d\n",
		path, p.Version, tile.Detect(data), p.Count, len(data))
	if !box.Empty {
		fmt.Fprintf(w, "  min=%v max=%v\n", box.Min, box.Max)
	}
	return nil
}
