package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newDiarizeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diarize <transcript>",
		Short: "Attribute transcript sentences to speakers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.pipeline(cmd)
			if err != nil {
				return err
			}
			res, err := p.Diarize(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, res.Utterances)
			}

			rows := make([][]string, 0, len(res.Utterances))
			for _, u := range res.Utterances {
				rows = append(rows, []string{u.Speaker, seconds(u.Start), seconds(u.End), u.Text})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]column{
				{title: "Speaker"},
				{title: "Start", numeric: true},
				{title: "End", numeric: true},
				{title: "Text", wrap: 60},
			}, rows))
			if len(res.Gaps) > 0 {
				fmt.Fprintf(out, "%d sentences without matching tokens:\n", len(res.Gaps))
				for _, g := range res.Gaps {
					fmt.Fprintf(out, "  #%s %s\n", strconv.Itoa(g.Index), g.Sentence)
				}
			}
			fmt.Fprintf(out, "%d of %d tokens aligned\n", res.Cursor, res.Tokens)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Write the utterances as JSON")
	return cmd
}
