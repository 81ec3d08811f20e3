package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Worker_TransitionsStatus(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *CompileJob) (JobResult, error) {
		return JobResult{RunID: "run-1", Output: "/out/1.mp4"}, nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "k1",
	})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		if !ok || got == nil {
			return false
		}
		return got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	got, _ := q.Get(job.ID)
	assert.Equal(t, JobResult{RunID: "run-1", Output: "/out/1.mp4"}, got.Result)
	assert.Empty(t, got.Error)
}

func TestQueue_Worker_SkipAndFailure(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, job *CompileJob) (JobResult, error) {
		switch job.Payload.ScopeName {
		case "empty":
			return JobResult{RunID: "run-empty"}, fmt.Errorf("no clips: %w", ErrSkip)
		case "broken":
			return JobResult{}, assert.AnError
		}
		return JobResult{}, nil
	})
	defer q.Stop()

	skipped, _ := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "a", Payload: JobPayload{ScopeName: "empty"}})
	failed, _ := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "b", Payload: JobPayload{ScopeName: "broken"}})

	require.Eventually(t, func() bool {
		s, _ := q.Get(skipped.ID)
		f, _ := q.Get(failed.ID)
		return s.Status == StatusSkipped && f.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	f, _ := q.Get(failed.ID)
	assert.Equal(t, assert.AnError.Error(), f.Error)
	assert.True(t, StatusSkipped.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestQueue_Stop_LeavesInterruptedJobRunning(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(1, store)
	started := make(chan struct{})
	q.Start(func(ctx context.Context, _ *CompileJob) (JobResult, error) {
		close(started)
		<-ctx.Done()
		return JobResult{}, ctx.Err()
	})

	job, _ := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "game|x"})
	<-started
	q.Stop()

	got, _ := q.Get(job.ID)
	assert.Equal(t, StatusRunning, got.Status)

	// a fresh queue picks the job up again
	restarted := NewQueue(1, store)
	recovered, ok := restarted.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, recovered.Status)
}

func TestOutcome(t *testing.T) {
	status, err := outcome(nil)
	assert.Equal(t, StatusSuccess, status)
	assert.NoError(t, err)

	status, err = outcome(fmt.Errorf("no clips for game:Chess: %w", ErrSkip))
	assert.Equal(t, StatusSkipped, status)
	assert.NoError(t, err)

	status, err = outcome(assert.AnError)
	assert.Equal(t, StatusFailed, status)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestQueue_Worker_PersistsResults(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(2, store)
	q.Start(func(_ context.Context, job *CompileJob) (JobResult, error) {
		switch job.Payload.ScopeName {
		case "Chess":
			return JobResult{RunID: "run-chess"}, fmt.Errorf("no clips for game:Chess: %w", ErrSkip)
		case "shroud":
			return JobResult{RunID: "run-shroud"}, fmt.Errorf("concatenation failed")
		}
		return JobResult{RunID: "run-ok", Output: "/out/1792152000000.mp4"}, nil
	})

	skipped, _ := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "game|chess", Payload: JobPayload{ScopeKind: "game", ScopeName: "Chess"}})
	failed, _ := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "user|shroud", Payload: JobPayload{ScopeKind: "user", ScopeName: "shroud"}})
	done, _ := q.Enqueue(EnqueueRequest{Source: "api", DedupeKey: "game|just chatting", Payload: JobPayload{ScopeKind: "game", ScopeName: "Just Chatting"}})

	require.Eventually(t, func() bool {
		for _, id := range []string{skipped.ID, failed.ID, done.ID} {
			got, _ := q.Get(id)
			if !got.Status.Terminal() {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
	q.Stop()

	s := store.jobs[skipped.ID]
	assert.Equal(t, StatusSkipped, s.Status)
	assert.Equal(t, "run-chess", s.Result.RunID)
	assert.Empty(t, s.Error)

	f := store.jobs[failed.ID]
	assert.Equal(t, StatusFailed, f.Status)
	assert.Equal(t, "run-shroud", f.Result.RunID)
	assert.Equal(t, "concatenation failed", f.Error)

	d := store.jobs[done.ID]
	assert.Equal(t, StatusSuccess, d.Status)
	assert.Equal(t, JobResult{RunID: "run-ok", Output: "/out/1792152000000.mp4"}, d.Result)
}

func TestQueue_Worker_SkippedJobReleasesDedupeKey(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *CompileJob) (JobResult, error) {
		return JobResult{}, ErrSkip
	})
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "game|chess"})
	require.True(t, created)
	require.Eventually(t, func() bool {
		got, _ := q.Get(first.ID)
		return got.Status == StatusSkipped
	}, time.Second, 10*time.Millisecond)

	second, created := q.Enqueue(EnqueueRequest{Source: "cron", DedupeKey: "game|chess"})
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}
