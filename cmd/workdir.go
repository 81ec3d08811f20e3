package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/clipreel/internal/artifact"
	"github.com/MimeLyc/clipreel/internal/config"
	"github.com/MimeLyc/clipreel/internal/pipeline"
)

func newWorkdirCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "workdir",
		Short: "Show the clip artifacts in the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(config.WithoutCredentials())
			if err != nil {
				return err
			}
			store, err := artifact.OpenStore(cfg.Paths.ClipsDir)
			if err != nil {
				return err
			}
			ins, err := pipeline.Inspect(store)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderInspection(ins))
			return nil
		},
	}
}

func renderInspection(ins *pipeline.Inspection) string {
	out := "Working directory: " + ins.Dir + "\n"
	if ins.State.Len() == 0 {
		out += "No clip artifacts\n"
	} else {
		var indices []int
		for _, a := range ins.State.All() {
			if !slices.Contains(indices, a.Index) {
				indices = append(indices, a.Index)
			}
		}
		slices.Sort(indices)

		rows := make([][]string, 0, len(indices))
		for _, idx := range indices {
			input := "-"
			if a, ok := ins.State.Input(idx); ok {
				input = a.Name()
			}
			rows = append(rows, []string{
				strconv.Itoa(idx),
				mark(ins.State.Has(idx, artifact.Raw)),
				mark(ins.State.Has(idx, artifact.Resized)),
				mark(ins.State.Has(idx, artifact.Annotated)),
				input,
			})
		}
		out += renderTable([]string{"Clip", "Raw", "Resized", "Annotated", "Annotate input"}, rows, []columnAlignment{alignRight}) + "\n"
	}

	for _, e := range ins.Foreign {
		out += fmt.Sprintf("ignored: %s\n", e.Context["name"])
	}
	return out
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "-"
}
