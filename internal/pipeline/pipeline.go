package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/clipreel/internal/artifact"
	"github.com/MimeLyc/clipreel/internal/clips"
	"github.com/MimeLyc/clipreel/internal/media"
	"github.com/MimeLyc/clipreel/pkg/file"
	"github.com/MimeLyc/clipreel/pkg/log"
)

// Pipeline turns a clip batch into one compiled video.
type Pipeline struct {
	store    *artifact.Store
	source   Source
	fetcher  Fetcher
	operator media.Operator
	cfg      Config
}

func New(store *artifact.Store, source Source, fetcher Fetcher, operator media.Operator, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		store:    store,
		source:   source,
		fetcher:  fetcher,
		operator: operator,
		cfg:      cfg,
	}
}

// Run executes Fetch, Download, Resize, Annotate and Concatenate for req.
// Per-clip failures are recorded in the report; the returned error is set
// only when the run produced no output.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Scope:     req.Scope,
		StartedAt: p.cfg.Now(),
	}
	defer func() { report.FinishedAt = p.cfg.Now() }()

	if err := req.validate(); err != nil {
		return report, err
	}

	if err := p.store.Lock(); err != nil {
		return report, WrapError(err, ErrWorkspace, "cannot lock working directory")
	}
	defer func() {
		if err := p.store.Unlock(); err != nil {
			log.Warn("Failed to unlock %s: %v", p.store.Dir(), err)
		}
	}()

	log.Info("Run %s: compiling top %d clips of %s", report.RunID, req.Amount, req.Scope)

	if req.ClearWorkdir {
		log.Info("Clearing working directory %s", p.store.Dir())
		if err := p.store.Clear(); err != nil {
			return report, WrapError(err, ErrWorkspace, "cannot clear working directory")
		}
	}

	batch, err := p.source.TopClips(ctx, req.Scope, req.Amount, req.TimeFrame)
	if err != nil {
		return report, WrapError(err, ErrSourceUnavailable, "failed to fetch clips").
			WithContext("scope", req.Scope.String())
	}
	if err := batch.Validate(); err != nil {
		return report, WrapError(err, ErrSourceUnavailable, "clip source returned an inconsistent batch")
	}
	report.Batch = batch
	if len(batch) == 0 {
		log.Info("No clips found for %s, nothing to process", req.Scope)
		report.NothingToProcess = true
		return report, nil
	}
	log.Info("Fetched %d clips", len(batch))

	if req.SkipDownload {
		log.Info("Skipping download, resuming from %s", p.store.Dir())
	} else if err := p.download(ctx, batch, report); err != nil {
		return report, err
	}

	if req.SkipResize {
		log.Info("Skipping resize")
	} else if err := p.resize(ctx, batch, report); err != nil {
		return report, err
	}

	if err := p.annotate(ctx, batch, report); err != nil {
		return report, err
	}

	if req.StrictAnnotate && len(report.Dropped) > 0 {
		return report, NewError(ErrConcatenationFailed, "clips were dropped and strict mode is on").
			WithContext("dropped", report.DroppedIndices())
	}

	output, err := p.concatenate(ctx, batch, report)
	if err != nil {
		return report, err
	}
	report.Output = output

	log.Info("Run %s finished: %d clips compiled into %s, %d dropped",
		report.RunID, len(batch)-len(report.Dropped), output, len(report.Dropped))
	return report, nil
}

func (p *Pipeline) scan() (artifact.State, error) {
	state, err := p.store.Scan()
	if err != nil {
		return state, WrapError(err, ErrWorkspace, "cannot read working directory")
	}
	return state, nil
}

func (p *Pipeline) drop(report *Report, index int, step Step, err error) {
	log.Warn("Dropping clip %d at %s: %v", index, step, err)
	report.Dropped = append(report.Dropped, Drop{Index: index, Step: step, Err: err})
}

// fanOut runs fn for every index on a pool of cfg.Workers goroutines and
// returns each index's error once all of them reached a terminal state.
func (p *Pipeline) fanOut(ctx context.Context, indices []int, fn func(ctx context.Context, index int) error) map[int]error {
	var (
		mu      sync.Mutex
		results = make(map[int]error, len(indices))
	)

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, idx := range indices {
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				err = SafeExecute(func() error { return fn(ctx, idx) })
			}
			mu.Lock()
			results[idx] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.OperationTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

// commit publishes a finished part file under its artifact name.
func commit(part, final string, index int, step Step) error {
	if err := file.Commit(part, final); err != nil {
		return WrapError(err, ErrWorkspace, "cannot publish artifact").ForClip(index, step)
	}
	return nil
}

func mediaFailure(res media.Result, kind media.Kind, index int, step Step) *Error {
	return WrapError(res.Failure(kind), ErrTranscodeFailed, fmt.Sprintf("%s failed", kind)).
		ForClip(index, step).
		WithContext("exit_code", res.ExitCode).
		WithContext("timed_out", res.TimedOut)
}

func (p *Pipeline) outputPath(started time.Time) string {
	return filepath.Join(p.cfg.OutputDir, fmt.Sprintf("%d%s", started.UnixMilli(), artifact.Ext))
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("run deadline exceeded: %w", err)
		}
		return fmt.Errorf("run cancelled: %w", err)
	}
	return nil
}

var _ Source = (*clips.Client)(nil)
var _ Fetcher = (*clips.Downloader)(nil)
