package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"github.com/MimeLyc/clipreel/internal/clips"
	"github.com/MimeLyc/clipreel/internal/config"
	"github.com/MimeLyc/clipreel/internal/jobs"
	"github.com/MimeLyc/clipreel/internal/persistence"
	"github.com/MimeLyc/clipreel/internal/pipeline"
	"github.com/MimeLyc/clipreel/pkg/icron"
	"github.com/MimeLyc/clipreel/pkg/log"
)

// CompileService resolves scopes, runs the pipeline and keeps the ledger.
// In scheduled mode it turns cron activations into queued compile jobs.
type CompileService struct {
	cfg      config.Config
	resolver Resolver
	runner   Runner
	ledger   Ledger
	queue    *jobs.Queue
	cron     *cron.Cron
	now      func() time.Time

	scopes singleflight.Group
}

func NewCompileService(
	cfg config.Config,
	resolver Resolver,
	runner Runner,
	ledger Ledger,
	queue *jobs.Queue,
	scheduler *cron.Cron,
) *CompileService {
	return &CompileService{
		cfg:      cfg,
		resolver: resolver,
		runner:   runner,
		ledger:   ledger,
		queue:    queue,
		cron:     scheduler,
		now:      time.Now,
	}
}

// ResolveScope looks up a scope by name. Concurrent lookups of the same
// name share one request, which outlives the cancellation of any single caller.
func (s *CompileService) ResolveScope(ctx context.Context, kind clips.ScopeKind, name string) (clips.Scope, error) {
	key := string(kind) + "|" + cases.Fold().String(strings.TrimSpace(name))
	ch := s.scopes.DoChan(key, func() (any, error) {
		return s.resolver.Resolve(context.WithoutCancel(ctx), kind, strings.TrimSpace(name))
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return clips.Scope{}, ctx.Err()
	}
	v, err := res.Val, res.Err
	if err != nil {
		if errors.Is(err, clips.ErrUnavailable) {
			return clips.Scope{}, pipeline.WrapError(err, pipeline.ErrSourceUnavailable, "cannot resolve "+string(kind))
		}
		return clips.Scope{}, pipeline.WrapError(err, pipeline.ErrValidation, "unknown "+string(kind))
	}
	return v.(clips.Scope), nil
}

// Compile resolves the scope, runs the pipeline and records the run.
func (s *CompileService) Compile(ctx context.Context, req CompileRequest) (*pipeline.Report, error) {
	scope, err := s.ResolveScope(ctx, req.Kind, req.Name)
	if err != nil {
		return nil, err
	}

	report, runErr := s.runner.Run(ctx, pipeline.Request{
		Scope:          scope,
		Amount:         req.Amount,
		TimeFrame:      req.TimeFrame,
		SkipDownload:   req.Resume,
		SkipResize:     req.SkipResize,
		ClearWorkdir:   req.Clear,
		StrictAnnotate: req.Strict,
	})
	if report != nil {
		if err := s.ledger.RecordRun(ctx, toRunRecord(req, report, runErr)); err != nil {
			log.Error("Failed to record run %s: %v", report.RunID, err)
		}
	}
	return report, runErr
}

func toRunRecord(req CompileRequest, report *pipeline.Report, runErr error) persistence.RunRecord {
	run := persistence.RunRecord{
		ID:              report.RunID,
		JobID:           req.JobID,
		ScopeKind:       string(report.Scope.Kind),
		ScopeID:         report.Scope.ID,
		ScopeName:       report.Scope.Name,
		Amount:          req.Amount,
		TimeFrame:       req.TimeFrame,
		DownloadedBytes: report.DownloadedBytes,
		Output:          report.Output,
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
	}
	switch {
	case runErr != nil:
		run.Status = persistence.RunFailed
		run.Error = runErr.Error()
	case report.NothingToProcess:
		run.Status = persistence.RunEmpty
	default:
		run.Status = persistence.RunSucceeded
		run.Clips = len(report.Batch) - len(report.Dropped)
	}
	for _, d := range report.Dropped {
		run.Dropped = append(run.Dropped, persistence.DroppedClip{
			Index:  d.Index,
			Step:   string(d.Step),
			Reason: d.Err.Error(),
		})
	}
	return run
}

// Schedule registers the cron activation that enqueues every configured
// target.
func (s *CompileService) Schedule() error {
	targets, err := s.cfg.Targets()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no schedule targets configured, set SCHEDULE_TARGETS")
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule.CronExpr, func() { s.EnqueueTargets() }); err != nil {
		return fmt.Errorf("add cron entry: %w", err)
	}

	if info, err := icron.GetTriggerInfo(s.cfg.Schedule.CronExpr, s.now()); err == nil {
		log.Info("Scheduled %d targets with %q, next run at %s (in %s)",
			len(targets), info.Expression, info.Next.Format(time.RFC3339), info.TimeUntilNext.Round(time.Second))
	}
	return nil
}

// EnqueueTargets queues one compile job per configured target. Targets with
// a job still pending or running are not queued twice.
func (s *CompileService) EnqueueTargets() []*jobs.CompileJob {
	targets, err := s.cfg.Targets()
	if err != nil {
		log.Error("Invalid schedule targets: %v", err)
		return nil
	}

	ret := make([]*jobs.CompileJob, 0, len(targets))
	for _, target := range targets {
		job, created, err := s.Enqueue("cron", target, 0, "")
		if err != nil {
			log.Error("Cannot queue %s: %v", target, err)
			continue
		}
		if !created {
			log.Info("Target %s already queued as %s", target, job.ID)
			continue
		}
		ret = append(ret, job)
	}
	return ret
}

// Enqueue queues a compile job for target. A zero amount or empty time
// frame falls back to the configured default.
func (s *CompileService) Enqueue(source string, target config.Target, amount int, timeFrame string) (*jobs.CompileJob, bool, error) {
	if amount <= 0 {
		amount = s.cfg.Compile.Amount
	}
	if strings.TrimSpace(timeFrame) == "" {
		timeFrame = s.cfg.Compile.TimeFrame
	}
	if _, err := clips.ParseTimeFrame(timeFrame); err != nil {
		return nil, false, pipeline.WrapError(err, pipeline.ErrValidation, "invalid time frame")
	}
	if strings.TrimSpace(target.Name) == "" {
		return nil, false, pipeline.NewError(pipeline.ErrValidation, "a game or user name is required")
	}

	job, created := s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    source,
		DedupeKey: string(target.Kind) + "|" + cases.Fold().String(strings.TrimSpace(target.Name)),
		Payload: jobs.JobPayload{
			ScopeKind: string(target.Kind),
			ScopeName: strings.TrimSpace(target.Name),
			Amount:    amount,
			TimeFrame: timeFrame,
		},
	})
	if created {
		log.Info("Queued %s as %s", target, job.ID)
	}
	return job, created, nil
}

// ExecuteJob is the queue executor for compile jobs. Scheduled runs start
// from an empty working directory since consecutive targets share it.
func (s *CompileService) ExecuteJob(ctx context.Context, job *jobs.CompileJob) (jobs.JobResult, error) {
	kind, err := clips.ParseScopeKind(job.Payload.ScopeKind)
	if err != nil {
		return jobs.JobResult{}, err
	}
	window, err := clips.ParseTimeFrame(job.Payload.TimeFrame)
	if err != nil {
		return jobs.JobResult{}, err
	}

	log.Info("Job %s: compiling %s:%s", job.ID, kind, job.Payload.ScopeName)
	report, err := s.Compile(ctx, CompileRequest{
		Kind:      kind,
		Name:      job.Payload.ScopeName,
		Amount:    job.Payload.Amount,
		TimeFrame: window,
		Clear:     true,
		Strict:    s.cfg.Compile.Strict,
		JobID:     job.ID,
	})
	s.pruneLedger(ctx)

	var result jobs.JobResult
	if report != nil {
		result = jobs.JobResult{RunID: report.RunID, Output: report.Output}
	}
	if err != nil {
		pipeline.NewDefaultErrorHandler().Handle(err)
		return result, err
	}
	if report.NothingToProcess {
		return result, fmt.Errorf("no clips for %s: %w", report.Scope, jobs.ErrSkip)
	}
	return result, nil
}

func (s *CompileService) pruneLedger(ctx context.Context) {
	retention := s.cfg.LedgerRetention()
	if retention <= 0 {
		return
	}
	n, err := s.ledger.DeleteRunsBefore(ctx, s.now().Add(-retention))
	if err != nil {
		log.Warn("Failed to prune run ledger: %v", err)
		return
	}
	if n > 0 {
		log.Info("Pruned %d runs older than %d days", n, s.cfg.Schedule.LedgerRetentionDays)
	}
}

// Start runs the queue and the cron scheduler until ctx is done.
func (s *CompileService) Start(ctx context.Context) {
	s.queue.Start(s.ExecuteJob)
	s.cron.Start()
	log.Info("Scheduler started")

	<-ctx.Done()

	log.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.queue.Stop()
}
