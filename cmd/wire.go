package main

import (
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/clipreel/internal/artifact"
	"github.com/MimeLyc/clipreel/internal/clips"
	"github.com/MimeLyc/clipreel/internal/config"
	"github.com/MimeLyc/clipreel/internal/jobs"
	"github.com/MimeLyc/clipreel/internal/media"
	"github.com/MimeLyc/clipreel/internal/persistence"
	"github.com/MimeLyc/clipreel/internal/pipeline"
	"github.com/MimeLyc/clipreel/internal/service"
)

func (a *appContext) openLedger(cfg *config.Config) (*persistence.SQLiteStore, error) {
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	a.onClose(store.Close)
	return store, nil
}

func newPipeline(cfg *config.Config, source pipeline.Source) (*pipeline.Pipeline, error) {
	workdir, err := artifact.OpenStore(cfg.Paths.ClipsDir)
	if err != nil {
		return nil, pipeline.WrapError(err, pipeline.ErrWorkspace, "cannot open working directory")
	}

	style := media.DefaultTextStyle()
	style.FontFile = cfg.Video.FontFile
	ffmpeg := media.NewFfmpeg(
		media.NewExecRunner(),
		media.WithBinaries(cfg.Video.FfmpegBin, cfg.Video.FfprobeBin),
		media.WithTextStyle(style),
	)

	return pipeline.New(workdir, source, clips.NewDownloader(), ffmpeg, pipeline.Config{
		Workers:          cfg.Compile.Workers,
		Target:           media.Dimensions{Width: cfg.Video.Width, Height: cfg.Video.Height},
		OutputDir:        cfg.Paths.OutputDir,
		OperationTimeout: cfg.OperationTimeout(),
	}), nil
}

// newCompileService wires the Helix client, the pipeline and the ledger.
// queue may be nil for one-off compilations.
func newCompileService(cfg *config.Config, ledger service.Ledger, queue *jobs.Queue) (*service.CompileService, error) {
	client := clips.NewClient(cfg.Twitch.ClientID,
		clips.WithToken(cfg.Twitch.Token),
		clips.WithBaseURL(cfg.Twitch.BaseURL),
	)
	p, err := newPipeline(cfg, client)
	if err != nil {
		return nil, err
	}
	return service.NewCompileService(*cfg, client, p, ledger, queue, cron.New()), nil
}
