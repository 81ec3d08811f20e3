package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/clipreel/internal/clips"
	"github.com/MimeLyc/clipreel/internal/config"
	"github.com/MimeLyc/clipreel/internal/pipeline"
	"github.com/MimeLyc/clipreel/internal/service"
)

var errAborted = errors.New("compilation cancelled")

type compileOptions struct {
	game      string
	user      string
	amount    int
	timeFrame string

	resume   bool
	noResize bool
	clear    bool
	strict   bool
}

func newCompileCommand(app *appContext) *cobra.Command {
	var opts compileOptions

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Download, resize, annotate and concatenate the top clips of a game or user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}

			opts.applyDefaults(cfg)
			if opts.game == "" && opts.user == "" {
				if !app.interactive() {
					return fmt.Errorf("one of --game or --user is required")
				}
				if err := app.prompt(&opts); err != nil {
					return err
				}
			}
			req, err := opts.request()
			if err != nil {
				return err
			}

			ledger, err := app.openLedger(cfg)
			if err != nil {
				return err
			}
			svc, err := newCompileService(cfg, ledger, nil)
			if err != nil {
				return err
			}

			report, err := svc.Compile(cmd.Context(), req)
			if report != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
			}
			if err != nil {
				pipeline.NewDefaultErrorHandler().Handle(err)
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.game, "game", "g", "", "Game name (exact)")
	flags.StringVarP(&opts.user, "user", "u", "", "Broadcaster login (exact)")
	flags.IntVarP(&opts.amount, "amount", "n", 0, "Number of clips (default from CLIP_AMOUNT)")
	flags.StringVarP(&opts.timeFrame, "time-frame", "t", "", `How far back to look, e.g. "1 week" (default from CLIP_TIME_FRAME)`)
	flags.BoolVar(&opts.resume, "resume", false, "Skip downloading and reuse the clips already in the working directory")
	flags.BoolVar(&opts.noResize, "no-resize", false, "Skip resizing")
	flags.BoolVar(&opts.clear, "clear", false, "Empty the working directory before starting")
	flags.BoolVar(&opts.strict, "strict", false, "Fail without output when any clip is dropped")
	cmd.MarkFlagsMutuallyExclusive("game", "user")

	return cmd
}

// applyDefaults fills unset values from the configuration.
func (o *compileOptions) applyDefaults(cfg *config.Config) {
	if o.amount <= 0 {
		o.amount = cfg.Compile.Amount
	}
	if strings.TrimSpace(o.timeFrame) == "" {
		o.timeFrame = cfg.Compile.TimeFrame
	}
	if cfg.Compile.Strict {
		o.strict = true
	}
}

func (o *compileOptions) request() (service.CompileRequest, error) {
	req := service.CompileRequest{
		Amount:     o.amount,
		Resume:     o.resume,
		SkipResize: o.noResize,
		Clear:      o.clear,
		Strict:     o.strict,
	}
	switch {
	case o.game != "" && o.user != "":
		return req, fmt.Errorf("--game and --user are mutually exclusive")
	case o.game != "":
		req.Kind, req.Name = clips.ScopeGame, o.game
	case o.user != "":
		req.Kind, req.Name = clips.ScopeBroadcaster, o.user
	default:
		return req, fmt.Errorf("one of --game or --user is required")
	}

	window, err := clips.ParseTimeFrame(o.timeFrame)
	if err != nil {
		return req, err
	}
	req.TimeFrame = window
	if req.Amount <= 0 {
		return req, fmt.Errorf("amount must be positive, got %d", req.Amount)
	}
	return req, nil
}

func renderReport(r *pipeline.Report) string {
	if r.NothingToProcess {
		return fmt.Sprintf("No clips found for %s", r.Scope)
	}

	duration := "-"
	if !r.FinishedAt.IsZero() {
		duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
	}
	rows := [][]string{
		{"Run", r.RunID},
		{"Scope", r.Scope.String()},
		{"Clips", strconv.Itoa(len(r.Batch))},
		{"Downloaded", fmt.Sprintf("%d (%s)", len(r.Downloaded), humanize.Bytes(uint64(r.DownloadedBytes)))},
		{"Resized", fmt.Sprintf("%d (%d already at target)", len(r.Resized), len(r.ResizeSkipped))},
		{"Annotated", strconv.Itoa(len(r.Annotated))},
		{"Reused", formatIndices(r.Reused)},
		{"Dropped", formatIndices(r.DroppedIndices())},
		{"Duration", duration},
		{"Output", orDash(r.Output)},
	}
	out := renderTable([]string{"Run", "Value"}, rows, nil)

	if len(r.Dropped) > 0 {
		dropped := make([][]string, 0, len(r.Dropped))
		for _, d := range r.Dropped {
			dropped = append(dropped, []string{strconv.Itoa(d.Index), string(d.Step), d.Err.Error()})
		}
		out += "\n" + renderTable([]string{"Clip", "Step", "Reason"}, dropped, []columnAlignment{alignRight})
	}
	return out
}
