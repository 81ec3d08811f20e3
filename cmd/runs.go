package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/clipreel/internal/config"
	"github.com/MimeLyc/clipreel/internal/persistence"
)

func newRunsCommand(app *appContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded compilation runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(config.WithoutCredentials())
			if err != nil {
				return err
			}
			ledger, err := app.openLedger(cfg)
			if err != nil {
				return err
			}

			runs, err := ledger.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, renderRuns(runs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}

func renderRuns(runs []persistence.RunRecord) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		dropped := make([]int, 0, len(run.Dropped))
		for _, d := range run.Dropped {
			dropped = append(dropped, d.Index)
		}
		rows = append(rows, []string{
			humanize.Time(run.StartedAt),
			shortID(run.ID),
			run.ScopeKind + ":" + run.ScopeName,
			string(run.Status),
			strconv.Itoa(run.Clips),
			formatIndices(dropped),
			humanize.Bytes(uint64(run.DownloadedBytes)),
			orDash(run.Output),
		})
	}
	return renderTable(
		[]string{"Started", "Run", "Scope", "Status", "Clips", "Dropped", "Downloaded", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
