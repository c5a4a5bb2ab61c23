package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newFeaturesCommand(ctx *commandContext) *cobra.Command {
	var delta bool
	var noise, stretch, pitch float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "features <audio>",
		Short: "Extract chunk or frame features from a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("augment-noise") {
				cfg.Features.NoiseLevel = noise
			}
			if cmd.Flags().Changed("augment-stretch") {
				cfg.Features.Stretch = stretch
			}
			if cmd.Flags().Changed("augment-pitch") {
				cfg.Features.PitchSteps = pitch
			}
			p, err := ctx.pipeline(cmd)
			if err != nil {
				return err
			}
			w, err := p.LoadAudio(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if delta {
				rows, err := p.ExtractFrames(w)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, rows)
				}
				width := 0
				if len(rows) > 0 {
					width = len(rows[0])
				}
				fmt.Fprintf(out, "%d frames x %d values (MFCC, delta, delta-delta)\n", len(rows), width)
				return nil
			}

			m, report, err := p.Extract(cmd.Context(), w)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, struct {
					Indices []int       `json:"indices"`
					Rows    [][]float64 `json:"rows"`
					Report  any         `json:"report"`
				}{m.Indices(), m.Rows(), report})
			}
			fmt.Fprintf(out, "%d of %d chunks kept, %d values per chunk\n", report.Kept, report.Chunks, m.Width)
			if len(report.Warnings) > 0 {
				rows := make([][]string, 0, len(report.Warnings))
				for _, warn := range report.Warnings {
					rows = append(rows, []string{strconv.Itoa(warn.Chunk), strconv.Itoa(warn.Position), warn.Reason})
				}
				fmt.Fprintln(out, renderTable([]column{
					{title: "Dropped chunk", numeric: true},
					{title: "Position", numeric: true},
					{title: "Reason", wrap: 50},
				}, rows))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&delta, "delta", false, "Frame-level MFCC with delta and delta-delta instead of chunks")
	cmd.Flags().Float64Var(&noise, "augment-noise", 0, "Add seeded white noise of this level before extraction")
	cmd.Flags().Float64Var(&stretch, "augment-stretch", 0, "Time stretch by this tempo factor before extraction")
	cmd.Flags().Float64Var(&pitch, "augment-pitch", 0, "Pitch shift by this many semitones before extraction")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the feature rows as JSON")
	return cmd
}
