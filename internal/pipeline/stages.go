package pipeline

import (
	"context"
	"sync"

	"github.com/MimeLyc/clipreel/internal/artifact"
	"github.com/MimeLyc/clipreel/internal/clips"
	"github.com/MimeLyc/clipreel/internal/media"
	"github.com/MimeLyc/clipreel/pkg/file"
	"github.com/MimeLyc/clipreel/pkg/log"
)

// download fetches the Raw artifact of every clip that has no artifact yet.
func (p *Pipeline) download(ctx context.Context, batch clips.Batch, report *Report) error {
	state, err := p.scan()
	if err != nil {
		return err
	}

	var todo []int
	for _, d := range batch {
		if state.Reached(d.Index, artifact.Raw) {
			log.Debug("Clip %d already downloaded", d.Index)
			continue
		}
		todo = append(todo, d.Index)
	}
	log.Info("Downloading %d of %d clips", len(todo), len(batch))

	var (
		mu    sync.Mutex
		sizes = make(map[int]int64, len(todo))
	)
	results := p.fanOut(ctx, todo, func(ctx context.Context, index int) error {
		d, _ := batch.Get(index)
		opCtx, cancel := p.withTimeout(ctx)
		defer cancel()

		n, err := p.fetcher.Download(opCtx, d.SourceMediaURL, p.store.Path(artifact.Artifact{Index: index, Stage: artifact.Raw}))
		if err != nil {
			return WrapError(err, ErrDownloadFailed, "download failed").
				ForClip(index, StepDownload).
				WithContext("clip", d.ID)
		}
		mu.Lock()
		sizes[index] = n
		mu.Unlock()
		log.Debug("Downloaded clip %d (%s): %d bytes", index, d.ID, n)
		return nil
	})

	for _, idx := range todo {
		if err := results[idx]; err != nil {
			p.drop(report, idx, StepDownload, err)
			continue
		}
		report.Downloaded = append(report.Downloaded, idx)
		report.DownloadedBytes += sizes[idx]
	}
	return cancelled(ctx)
}

// resize brings every Raw clip to the target resolution unless a Resized
// artifact exists or the clip is already at that size.
func (p *Pipeline) resize(ctx context.Context, batch clips.Batch, report *Report) error {
	state, err := p.scan()
	if err != nil {
		return err
	}

	var todo []int
	for _, d := range batch {
		if state.Has(d.Index, artifact.Raw) && !state.Has(d.Index, artifact.Resized) {
			todo = append(todo, d.Index)
		}
	}
	log.Info("Resizing %d clips to %s", len(todo), p.cfg.Target)

	target := p.cfg.Target
	var (
		mu       sync.Mutex
		atTarget = make(map[int]bool)
	)
	results := p.fanOut(ctx, todo, func(ctx context.Context, index int) error {
		raw := p.store.Path(artifact.Artifact{Index: index, Stage: artifact.Raw})

		probeCtx, cancelProbe := p.withTimeout(ctx)
		dims, err := p.operator.Dimensions(probeCtx, raw)
		cancelProbe()
		if err != nil {
			return WrapError(err, ErrTranscodeFailed, "cannot probe dimensions").ForClip(index, StepResize)
		}
		if dims == target {
			mu.Lock()
			atTarget[index] = true
			mu.Unlock()
			log.Debug("Clip %d is already %s", index, target)
			return nil
		}

		out := p.store.Path(artifact.Artifact{Index: index, Stage: artifact.Resized})
		part := file.PartPath(out)
		opCtx, cancel := p.withTimeout(ctx)
		defer cancel()
		res := p.operator.Resize(opCtx, raw, part, target)
		if !res.OK() {
			file.Discard(part)
			return mediaFailure(res, media.KindResize, index, StepResize).
				WithContext("from", dims.String())
		}
		return commit(part, out, index, StepResize)
	})

	for _, idx := range todo {
		switch err := results[idx]; {
		case err != nil:
			p.drop(report, idx, StepResize, err)
		case atTarget[idx]:
			report.ResizeSkipped = append(report.ResizeSkipped, idx)
		default:
			report.Resized = append(report.Resized, idx)
		}
	}
	return cancelled(ctx)
}

// annotate burns the broadcaster name and title of each remaining clip into
// its best available input. Existing Annotated artifacts are rewritten so the
// text always matches the current batch.
func (p *Pipeline) annotate(ctx context.Context, batch clips.Batch, report *Report) error {
	state, err := p.scan()
	if err != nil {
		return err
	}

	var todo []int
	for _, d := range batch {
		if report.isDropped(d.Index) {
			continue
		}
		if _, ok := state.Input(d.Index); ok {
			todo = append(todo, d.Index)
			continue
		}
		if state.Has(d.Index, artifact.Annotated) {
			log.Warn("Clip %d has only an annotated artifact, reusing it as is", d.Index)
			report.Reused = append(report.Reused, d.Index)
			continue
		}
		p.drop(report, d.Index, StepAnnotate,
			NewError(ErrWorkspace, "no artifact on disk").ForClip(d.Index, StepAnnotate))
	}
	log.Info("Annotating %d clips", len(todo))

	results := p.fanOut(ctx, todo, func(ctx context.Context, index int) error {
		d, _ := batch.Get(index)
		in, _ := state.Input(index)
		out := p.store.Path(artifact.Artifact{Index: index, Stage: artifact.Annotated})
		part := file.PartPath(out)

		opCtx, cancel := p.withTimeout(ctx)
		defer cancel()
		res := p.operator.Annotate(opCtx, p.store.Path(in), part, media.Overlay{
			Title:           d.Title,
			BroadcasterName: d.BroadcasterName,
		})
		if !res.OK() {
			file.Discard(part)
			// a stale artifact from an earlier run must not reach concatenation
			file.Discard(out)
			return mediaFailure(res, media.KindAnnotate, index, StepAnnotate).
				WithContext("input", in.Name())
		}
		return commit(part, out, index, StepAnnotate)
	})

	for _, idx := range todo {
		if err := results[idx]; err != nil {
			p.drop(report, idx, StepAnnotate, err)
			continue
		}
		report.Annotated = append(report.Annotated, idx)
	}
	return cancelled(ctx)
}

// concatenate joins the Annotated artifacts of the batch in rank order into
// the output directory and returns the output path.
func (p *Pipeline) concatenate(ctx context.Context, batch clips.Batch, report *Report) (string, error) {
	state, err := p.scan()
	if err != nil {
		return "", err
	}

	inputs := make([]string, 0, len(batch))
	for _, d := range batch {
		if state.Has(d.Index, artifact.Annotated) && !report.isDropped(d.Index) {
			inputs = append(inputs, p.store.Path(artifact.Artifact{Index: d.Index, Stage: artifact.Annotated}))
		}
	}
	for _, idx := range state.Indices(artifact.Annotated) {
		if _, ok := batch.Get(idx); !ok {
			log.Info("Ignoring annotated clip %d, it is not part of this batch", idx)
		}
	}
	if len(inputs) == 0 {
		return "", NewError(ErrConcatenationFailed, "no annotated clips to concatenate").
			WithContext("dropped", report.DroppedIndices())
	}

	if err := file.EnsureDir(p.cfg.OutputDir); err != nil {
		return "", WrapError(err, ErrWorkspace, "cannot create output directory")
	}
	out := p.outputPath(report.StartedAt)
	part := file.PartPath(out)

	log.Info("Concatenating %d clips into %s", len(inputs), out)
	opCtx, cancel := p.withTimeout(ctx)
	defer cancel()
	res := p.operator.Concatenate(opCtx, inputs, part)
	if !res.OK() {
		file.Discard(part)
		return "", WrapError(res.Failure(media.KindConcatenate), ErrConcatenationFailed, "concatenation failed").
			WithContext("inputs", len(inputs)).
			WithContext("timed_out", res.TimedOut)
	}
	if err := file.Commit(part, out); err != nil {
		return "", WrapError(err, ErrConcatenationFailed, "cannot publish output")
	}
	return out, nil
}
