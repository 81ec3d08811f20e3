package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/clipreel/internal/artifact"
	"github.com/MimeLyc/clipreel/internal/httpapi"
	"github.com/MimeLyc/clipreel/internal/jobs"
	"github.com/MimeLyc/clipreel/pkg/log"
)

func newScheduleCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Compile the configured targets on the CRON_EXPR schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}
			ledger, err := app.openLedger(cfg)
			if err != nil {
				return err
			}

			// one worker: every job shares the working directory
			queue := jobs.NewQueue(1, ledger)
			svc, err := newCompileService(cfg, ledger, queue)
			if err != nil {
				return err
			}
			if err := svc.Schedule(); err != nil {
				return err
			}

			ctx := cmd.Context()
			if cfg.System.HTTPAddr != "" {
				workdir, err := artifact.OpenStore(cfg.Paths.ClipsDir)
				if err != nil {
					return err
				}
				srv := httpapi.NewServer(queue, svc, httpapi.WithRuns(ledger), httpapi.WithWorkdir(workdir))
				go func() {
					log.Info("Control API listening on %s", cfg.System.HTTPAddr)
					if err := srv.ListenAndServe(cfg.System.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("Control API stopped: %v", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						log.Warn("Control API shutdown: %v", err)
					}
				}()
			}

			svc.Start(ctx)
			return nil
		},
	}
}
