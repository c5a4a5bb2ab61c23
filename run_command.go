package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var transcriptPath string

	cmd := &cobra.Command{
		Use:   "run <audio>",
		Short: "Process a recording end to end and write a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.pipeline(cmd)
			if err != nil {
				return err
			}
			res, err := p.Run(cmd.Context(), args[0], transcriptPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s written to %s\n", res.SessionID, res.Dir)
			fmt.Fprintf(out, "%d of %d chunks kept, %d clusters, inertia %.3f\n",
				res.Report.Kept, res.Report.Chunks, res.Clusters.K, res.Clusters.Inertia)

			rows := make([][]string, 0, len(res.Windows))
			for _, w := range res.Windows {
				cluster := "-"
				if w.Cluster >= 0 {
					cluster = strconv.Itoa(w.Cluster)
				}
				rows = append(rows, []string{
					strconv.Itoa(w.Chunk), seconds(w.T0), seconds(w.T1), cluster, w.Speaker,
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{title: "Chunk", numeric: true},
				{title: "Start", numeric: true},
				{title: "End", numeric: true},
				{title: "Cluster", numeric: true},
				{title: "Speaker"},
			}, rows))

			if len(res.Share) > 0 {
				speakers := make([]string, 0, len(res.Share))
				for s := range res.Share {
					speakers = append(speakers, s)
				}
				sort.Strings(speakers)
				for _, s := range speakers {
					fmt.Fprintf(out, "%s: %.1f%% of speech\n", s, 100*res.Share[s])
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&transcriptPath, "transcript", "t", "", "Transcript JSON for the same recording")
	return cmd
}
