package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/clipreel/internal/artifact"
	"github.com/MimeLyc/clipreel/internal/clips"
	"github.com/MimeLyc/clipreel/internal/media"
	"github.com/MimeLyc/clipreel/pkg/file"
)

func TestPipeline_Run_ThreeClips(t *testing.T) {
	h := newHarness(t, makeBatch(3))

	report, err := h.pipeline.Run(context.Background(), h.request(3))
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []int{0, 1, 2}, report.Downloaded)
	assert.Positive(t, report.DownloadedBytes)
	assert.Equal(t, []int{0, 1, 2}, report.Resized)
	assert.Equal(t, []int{0, 1, 2}, report.Annotated)
	assert.Empty(t, report.Dropped)
	assert.False(t, report.NothingToProcess)
	assert.Equal(t, fixedNow, report.StartedAt)
	assert.Equal(t, fixedNow, report.FinishedAt)

	assert.Equal(t, h.expectedOutput(), report.Output)
	assert.FileExists(t, report.Output)
	assert.Equal(t, []string{"text0.mp4", "text1.mp4", "text2.mp4"}, h.operator.concatInputs)

	for i := range 3 {
		assert.True(t, h.exists(i, artifact.Raw), "raw %d", i)
		assert.True(t, h.exists(i, artifact.Resized), "resized %d", i)
		assert.True(t, h.exists(i, artifact.Annotated), "text %d", i)
	}

	// annotation text comes from the batch entry with the same index
	for _, call := range h.operator.annotateCalls {
		idx := indexOf(call.Input)
		assert.Equal(t, fmt.Sprintf("resized%d.mp4", idx), call.Input)
		assert.Equal(t, fmt.Sprintf("Title %d", idx), call.Overlay.Title)
		assert.Equal(t, fmt.Sprintf("streamer%d", idx), call.Overlay.BroadcasterName)
	}

	entries, err := os.ReadDir(h.store.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, file.IsPartName(e.Name()), "leftover part file %s", e.Name())
	}
}

func TestPipeline_Run_EmptyBatch(t *testing.T) {
	h := newHarness(t, clips.Batch{})

	report, err := h.pipeline.Run(context.Background(), h.request(10))
	require.NoError(t, err)
	assert.True(t, report.NothingToProcess)
	assert.Empty(t, report.Output)
	assert.Empty(t, h.fetcher.calls)
	assert.NoDirExists(t, h.outDir)
}

func TestPipeline_Run_SourceUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.source.err = fmt.Errorf("%w: /clips returned status 401", clips.ErrUnavailable)

	report, err := h.pipeline.Run(context.Background(), h.request(5))
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrSourceUnavailable))
	assert.True(t, errors.Is(err, clips.ErrUnavailable))
	assert.Empty(t, report.Output)
	assert.NoDirExists(t, h.outDir)
}

func TestPipeline_Run_Validation(t *testing.T) {
	h := newHarness(t, makeBatch(1))

	_, err := h.pipeline.Run(context.Background(), Request{Scope: testScope})
	assert.True(t, IsErrorType(err, ErrValidation))

	_, err = h.pipeline.Run(context.Background(), Request{Amount: 1})
	assert.True(t, IsErrorType(err, ErrValidation))
	assert.Zero(t, h.source.calls)
}

func TestPipeline_Run_SupersessionPrefersResized(t *testing.T) {
	h := newHarness(t, makeBatch(1))
	h.touch(t, 0, artifact.Raw)
	h.touch(t, 0, artifact.Resized)

	req := h.request(1)
	req.SkipDownload = true
	report, err := h.pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, h.fetcher.calls)
	assert.Empty(t, h.operator.resizeCalls)
	assert.Equal(t, []string{"resized0.mp4"}, h.operator.annotateInputs())
	assert.Equal(t, []int{0}, report.Annotated)
}

func TestPipeline_Run_ResizeIsIdempotentAtTarget(t *testing.T) {
	h := newHarness(t, makeBatch(2))
	h.operator.dims = media.Dimensions{Width: 1920, Height: 1080}

	for range 2 {
		report, err := h.pipeline.Run(context.Background(), h.request(2))
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, report.ResizeSkipped)
		assert.Empty(t, report.Resized)
	}

	assert.Empty(t, h.operator.resizeCalls)
	assert.False(t, h.exists(0, artifact.Resized))
	assert.False(t, h.exists(1, artifact.Resized))
	assert.ElementsMatch(t, []string{"0.mp4", "1.mp4", "0.mp4", "1.mp4"}, h.operator.annotateInputs())
	// second run downloads nothing
	assert.Len(t, h.fetcher.calls, 2)
}

func TestPipeline_Run_ConcatOrderIgnoresCreationOrder(t *testing.T) {
	h := newHarness(t, makeBatch(5))
	for i := 4; i >= 0; i-- {
		h.touch(t, i, artifact.Raw)
	}
	// lower indices finish annotating last
	h.operator.annotateDelay = func(index int) time.Duration {
		return time.Duration(5-index) * 10 * time.Millisecond
	}

	req := h.request(5)
	req.SkipDownload = true
	req.SkipResize = true
	_, err := h.pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"text0.mp4", "text1.mp4", "text2.mp4", "text3.mp4", "text4.mp4"}, h.operator.concatInputs)
}

func TestPipeline_Run_AnnotateFailureIsIsolated(t *testing.T) {
	h := newHarness(t, makeBatch(5))
	h.operator.failAnnotate = map[int]bool{2: true}

	report, err := h.pipeline.Run(context.Background(), h.request(5))
	require.NoError(t, err)

	assert.Equal(t, []string{"text0.mp4", "text1.mp4", "text3.mp4", "text4.mp4"}, h.operator.concatInputs)
	assert.Equal(t, []int{0, 1, 3, 4}, report.Annotated)
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, 2, report.Dropped[0].Index)
	assert.Equal(t, StepAnnotate, report.Dropped[0].Step)
	assert.True(t, IsErrorType(report.Dropped[0].Err, ErrTranscodeFailed))
	assert.False(t, h.exists(2, artifact.Annotated))
	assert.FileExists(t, report.Output)
}

func TestPipeline_Run_AnnotateFailureRemovesStaleArtifact(t *testing.T) {
	h := newHarness(t, makeBatch(2))
	h.touch(t, 1, artifact.Raw)
	h.touch(t, 1, artifact.Annotated)
	h.operator.failAnnotate = map[int]bool{1: true}

	_, err := h.pipeline.Run(context.Background(), h.request(2))
	require.NoError(t, err)

	assert.False(t, h.exists(1, artifact.Annotated))
	assert.Equal(t, []string{"text0.mp4"}, h.operator.concatInputs)
}

func TestPipeline_Run_ResizeTimeoutIsTranscodeFailure(t *testing.T) {
	h := newHarness(t, makeBatch(3))
	h.operator.resizeResult = map[int]media.Result{
		1: {ExitCode: -1, TimedOut: true, Elapsed: time.Second, Err: context.DeadlineExceeded},
	}

	report, err := h.pipeline.Run(context.Background(), h.request(3))
	require.NoError(t, err)

	require.Len(t, report.Dropped, 1)
	drop := report.Dropped[0]
	assert.Equal(t, 1, drop.Index)
	assert.Equal(t, StepResize, drop.Step)
	assert.True(t, IsErrorType(drop.Err, ErrTranscodeFailed))
	assert.Contains(t, drop.Err.Error(), "timed out")

	var pe *Error
	require.ErrorAs(t, drop.Err, &pe)
	assert.Equal(t, "1280x720", pe.Context["from"])
	assert.Equal(t, true, pe.Context["timed_out"])

	assert.Equal(t, []int{0, 2}, report.Resized)
	assert.Equal(t, []string{"text0.mp4", "text2.mp4"}, h.operator.concatInputs)
	assert.True(t, h.exists(1, artifact.Raw), "raw artifact is kept")
}

func TestPipeline_Run_DownloadFailureIsIsolated(t *testing.T) {
	batch := makeBatch(3)
	h := newHarness(t, batch)
	h.fetcher.fail = map[string]bool{batch[1].SourceMediaURL: true}

	report, err := h.pipeline.Run(context.Background(), h.request(3))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2}, report.Downloaded)
	assert.Equal(t, []int{1}, report.DroppedIndices())
	assert.True(t, IsErrorType(report.Dropped[0].Err, ErrDownloadFailed))
	assert.Equal(t, []string{"text0.mp4", "text2.mp4"}, h.operator.concatInputs)
}

func TestPipeline_Run_ResumeDropsMissingClips(t *testing.T) {
	h := newHarness(t, makeBatch(3))
	h.touch(t, 0, artifact.Raw)
	h.touch(t, 2, artifact.Raw)

	req := h.request(3)
	req.SkipDownload = true
	report, err := h.pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, h.fetcher.calls)
	assert.Equal(t, []int{1}, report.DroppedIndices())
	assert.True(t, IsErrorType(report.Dropped[0].Err, ErrWorkspace))
	assert.Equal(t, []string{"text0.mp4", "text2.mp4"}, h.operator.concatInputs)
}

func TestPipeline_Run_MixedResize(t *testing.T) {
	batch := makeBatch(3)
	for i, title := range []string{"A", "B", "C"} {
		batch[i].Title = title
	}
	h := newHarness(t, batch)
	h.operator.dimsByIndex = map[int]media.Dimensions{1: {Width: 1920, Height: 1080}}

	report, err := h.pipeline.Run(context.Background(), h.request(3))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2}, report.Resized)
	assert.Equal(t, []int{1}, report.ResizeSkipped)
	assert.Equal(t, []int{0, 1, 2}, report.Annotated)
	assert.Empty(t, report.Dropped)
	assert.ElementsMatch(t, []string{"0.mp4", "2.mp4"}, h.operator.resizeCalls)
	assert.False(t, h.exists(1, artifact.Resized))

	titles := map[string]string{}
	for _, call := range h.operator.annotateCalls {
		titles[call.Input] = call.Overlay.Title
	}
	assert.Equal(t, map[string]string{"resized0.mp4": "A", "1.mp4": "B", "resized2.mp4": "C"}, titles)
	assert.Equal(t, []string{"text0.mp4", "text1.mp4", "text2.mp4"}, h.operator.concatInputs)
	assert.Equal(t, h.expectedOutput(), report.Output)
}

func TestPipeline_Run_AnnotatedOnlyIsReused(t *testing.T) {
	h := newHarness(t, makeBatch(2))
	h.touch(t, 0, artifact.Annotated)
	h.touch(t, 1, artifact.Raw)

	req := h.request(2)
	req.SkipDownload = true
	req.SkipResize = true
	report, err := h.pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"1.mp4"}, h.operator.annotateInputs())
	assert.Equal(t, []int{1}, report.Annotated)
	assert.Equal(t, []int{0}, report.Reused)
	assert.Empty(t, report.Dropped)
	assert.Equal(t, []string{"text0.mp4", "text1.mp4"}, h.operator.concatInputs)
}

func TestPipeline_Run_StrictAbortsOnDrop(t *testing.T) {
	h := newHarness(t, makeBatch(3))
	h.operator.failAnnotate = map[int]bool{0: true}

	req := h.request(3)
	req.StrictAnnotate = true
	report, err := h.pipeline.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrConcatenationFailed))
	assert.Empty(t, report.Output)
	assert.Empty(t, h.operator.concatInputs)
}

func TestPipeline_Run_AllDroppedFailsConcatenation(t *testing.T) {
	h := newHarness(t, makeBatch(2))
	h.operator.failAnnotate = map[int]bool{0: true, 1: true}

	_, err := h.pipeline.Run(context.Background(), h.request(2))
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrConcatenationFailed))
	assert.NoDirExists(t, h.outDir)
}

func TestPipeline_Run_ConcatenationFailureLeavesNoOutput(t *testing.T) {
	h := newHarness(t, makeBatch(2))
	h.operator.concatResult = media.Result{ExitCode: 1, Stderr: "Conversion failed!", Err: errors.New("exit status 1")}

	report, err := h.pipeline.Run(context.Background(), h.request(2))
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrConcatenationFailed))
	assert.Contains(t, err.Error(), "Conversion failed!")
	assert.Empty(t, report.Output)

	entries, err := os.ReadDir(h.outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPipeline_Run_ClearWorkdir(t *testing.T) {
	h := newHarness(t, makeBatch(1))
	h.touch(t, 7, artifact.Annotated)
	stray := filepath.Join(h.store.Dir(), "notes.txt")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))

	req := h.request(1)
	req.ClearWorkdir = true
	_, err := h.pipeline.Run(context.Background(), req)
	require.NoError(t, err)

	assert.NoFileExists(t, stray)
	assert.False(t, h.exists(7, artifact.Annotated))
	assert.Equal(t, []string{"text0.mp4"}, h.operator.concatInputs)
}

func TestPipeline_Run_IgnoresArtifactsOutsideBatch(t *testing.T) {
	h := newHarness(t, makeBatch(1))
	h.touch(t, 4, artifact.Annotated)

	_, err := h.pipeline.Run(context.Background(), h.request(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"text0.mp4"}, h.operator.concatInputs)
}

func TestPipeline_Run_LockedWorkdir(t *testing.T) {
	h := newHarness(t, makeBatch(1))
	other, err := artifact.OpenStore(h.store.Dir())
	require.NoError(t, err)
	require.NoError(t, other.Lock())
	defer other.Unlock()

	_, err = h.pipeline.Run(context.Background(), h.request(1))
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrWorkspace))
	assert.True(t, errors.Is(err, artifact.ErrLocked))
	assert.Zero(t, h.source.calls)
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	h := newHarness(t, makeBatch(3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipeline.Run(ctx, h.request(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, h.fetcher.calls)
}

func TestInspect(t *testing.T) {
	store, err := artifact.OpenStore(t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"0.mp4", "text0.mp4", "clip.mkv"} {
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), name), nil, 0o644))
	}

	ins, err := Inspect(store)
	require.NoError(t, err)
	assert.Equal(t, 2, ins.State.Len())
	require.Len(t, ins.Foreign, 1)
	assert.True(t, IsErrorType(ins.Foreign[0], ErrUnrecognizedArtifact))
	assert.True(t, errors.Is(ins.Foreign[0], artifact.ErrUnrecognized))
	assert.Equal(t, "clip.mkv", ins.Foreign[0].Context["name"])
}
