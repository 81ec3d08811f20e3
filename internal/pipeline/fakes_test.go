package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/clipreel/internal/artifact"
	"github.com/MimeLyc/clipreel/internal/clips"
	"github.com/MimeLyc/clipreel/internal/media"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

var testScope = clips.Scope{Kind: clips.ScopeGame, ID: "509658", Name: "Just Chatting"}

func makeBatch(n int) clips.Batch {
	batch := make(clips.Batch, n)
	for i := range batch {
		batch[i] = clips.Descriptor{
			ID:              fmt.Sprintf("clip-%d", i),
			Title:           fmt.Sprintf("Title %d", i),
			BroadcasterName: fmt.Sprintf("streamer%d", i),
			SourceMediaURL:  fmt.Sprintf("https://media.test/clip-%d.mp4", i),
			Index:           i,
		}
	}
	return batch
}

type fakeSource struct {
	batch clips.Batch
	err   error
	calls int
}

func (s *fakeSource) TopClips(_ context.Context, _ clips.Scope, amount int, _ time.Duration) (clips.Batch, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if amount < len(s.batch) {
		return s.batch[:amount], nil
	}
	return s.batch, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeFetcher) Download(_ context.Context, url, dest string) (int64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	fail := f.fail[url]
	f.mu.Unlock()
	if fail {
		return 0, errors.New("media server returned status 404")
	}
	body := []byte("raw:" + url)
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

type annotateCall struct {
	Input   string
	Overlay media.Overlay
}

// fakeOperator writes small marker files instead of transcoding.
type fakeOperator struct {
	mu sync.Mutex

	dims          media.Dimensions
	dimsByIndex   map[int]media.Dimensions
	resizeResult  map[int]media.Result
	failAnnotate  map[int]bool
	annotateDelay func(index int) time.Duration
	concatResult  media.Result

	resizeCalls   []string
	annotateCalls []annotateCall
	concatInputs  []string
}

func indexOf(path string) int {
	a, err := artifact.Parse(filepath.Base(path))
	if err != nil {
		return -1
	}
	return a.Index
}

func (o *fakeOperator) Dimensions(_ context.Context, path string) (media.Dimensions, error) {
	if d, ok := o.dimsByIndex[indexOf(path)]; ok {
		return d, nil
	}
	return o.dims, nil
}

func (o *fakeOperator) Resize(_ context.Context, input, output string, size media.Dimensions) media.Result {
	o.mu.Lock()
	o.resizeCalls = append(o.resizeCalls, filepath.Base(input))
	res, ok := o.resizeResult[indexOf(input)]
	o.mu.Unlock()
	if ok {
		return res
	}
	return writeMarker(output, fmt.Sprintf("resized %s to %s", filepath.Base(input), size))
}

func (o *fakeOperator) Annotate(_ context.Context, input, output string, overlay media.Overlay) media.Result {
	idx := indexOf(input)
	if o.annotateDelay != nil {
		time.Sleep(o.annotateDelay(idx))
	}
	o.mu.Lock()
	o.annotateCalls = append(o.annotateCalls, annotateCall{Input: filepath.Base(input), Overlay: overlay})
	fail := o.failAnnotate[idx]
	o.mu.Unlock()
	if fail {
		_ = os.WriteFile(output, []byte("partial"), 0o644)
		return media.Result{ExitCode: 1, Stderr: "Error initializing filter 'drawtext'", Err: errors.New("exit status 1")}
	}
	return writeMarker(output, overlay.BroadcasterName+"|"+overlay.Title)
}

func (o *fakeOperator) Concatenate(_ context.Context, inputs []string, output string) media.Result {
	o.mu.Lock()
	for _, in := range inputs {
		o.concatInputs = append(o.concatInputs, filepath.Base(in))
	}
	res := o.concatResult
	o.mu.Unlock()
	if !res.OK() {
		_ = os.WriteFile(output, []byte("partial"), 0o644)
		return res
	}
	return writeMarker(output, strings.Join(inputs, "\n"))
}

func (o *fakeOperator) annotateInputs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ret := make([]string, 0, len(o.annotateCalls))
	for _, c := range o.annotateCalls {
		ret = append(ret, c.Input)
	}
	return ret
}

func writeMarker(path, content string) media.Result {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return media.Result{ExitCode: 1, Err: err}
	}
	return media.Result{}
}

type harness struct {
	pipeline *Pipeline
	store    *artifact.Store
	source   *fakeSource
	fetcher  *fakeFetcher
	operator *fakeOperator
	outDir   string
}

func newHarness(t *testing.T, batch clips.Batch) *harness {
	t.Helper()
	store, err := artifact.OpenStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		store:    store,
		source:   &fakeSource{batch: batch},
		fetcher:  &fakeFetcher{},
		operator: &fakeOperator{dims: media.Dimensions{Width: 1280, Height: 720}},
		outDir:   filepath.Join(t.TempDir(), "out"),
	}
	h.pipeline = New(store, h.source, h.fetcher, h.operator, Config{
		Workers:   3,
		Target:    media.Dimensions{Width: 1920, Height: 1080},
		OutputDir: h.outDir,
		Now:       func() time.Time { return fixedNow },
	})
	return h
}

func (h *harness) request(amount int) Request {
	return Request{Scope: testScope, Amount: amount, TimeFrame: 7 * 24 * time.Hour}
}

func (h *harness) touch(t *testing.T, index int, stage artifact.Stage) {
	t.Helper()
	path := h.store.Path(artifact.Artifact{Index: index, Stage: stage})
	require.NoError(t, os.WriteFile(path, []byte(stage.String()), 0o644))
}

func (h *harness) exists(index int, stage artifact.Stage) bool {
	_, err := os.Stat(h.store.Path(artifact.Artifact{Index: index, Stage: stage}))
	return err == nil
}

func (h *harness) expectedOutput() string {
	return filepath.Join(h.outDir, fmt.Sprintf("%d.mp4", fixedNow.UnixMilli()))
}
