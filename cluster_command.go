package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newClusterCommand(ctx *commandContext) *cobra.Command {
	var frames bool
	var k int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "cluster <audio>",
		Short: "Group the chunks (or frames) of a recording with k-means",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("k") {
				cfg.Clustering.K = k
			}
			p, err := ctx.pipeline(cmd)
			if err != nil {
				return err
			}
			w, err := p.LoadAudio(args[0])
			if err != nil {
				return err
			}

			var rows [][]float64
			var indices []int
			unit := "chunk"
			if frames {
				unit = "frame"
				if rows, err = p.ExtractFrames(w); err != nil {
					return err
				}
			} else {
				m, _, err := p.Extract(cmd.Context(), w)
				if err != nil {
					return err
				}
				rows, indices = m.Rows(), m.Indices()
			}

			asg, err := p.Cluster(rows)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, asg)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d %ss in %d clusters, inertia %.3f after %d iterations\n",
				len(rows), unit, asg.K, asg.Inertia, asg.Iter)
			sizes := asg.Sizes()
			table := make([][]string, 0, asg.K)
			for c, n := range sizes {
				table = append(table, []string{strconv.Itoa(c), strconv.Itoa(n)})
			}
			fmt.Fprintln(out, renderTable([]column{{title: "Cluster", numeric: true}, {title: "Size", numeric: true}}, table))

			if indices != nil {
				step := cfg.Features.ChunkSeconds
				labels := make([][]string, 0, len(indices))
				for row, idx := range indices {
					labels = append(labels, []string{
						strconv.Itoa(idx),
						seconds(float64(idx) * step),
						strconv.Itoa(asg.Labels[row]),
					})
				}
				fmt.Fprintln(out, renderTable([]column{
					{title: "Chunk", numeric: true},
					{title: "Start", numeric: true},
					{title: "Cluster", numeric: true},
				}, labels))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&frames, "frames", false, "Cluster STFT frames (MFCC with deltas) instead of chunks")
	cmd.Flags().IntVar(&k, "k", 0, "Number of clusters (overrides clustering.k)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the assignment as JSON")
	return cmd
}
