package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/MimeLyc/clipreel/internal/clips"
	"github.com/MimeLyc/clipreel/internal/media"
)

// Step names a per-clip stage of a run.
type Step string

const (
	StepDownload Step = "download"
	StepResize   Step = "resize"
	StepAnnotate Step = "annotate"
)

// Source returns the ranked clips of a scope.
type Source interface {
	TopClips(ctx context.Context, scope clips.Scope, amount int, window time.Duration) (clips.Batch, error)
}

// Fetcher stores the media behind url at dest.
type Fetcher interface {
	Download(ctx context.Context, url, dest string) (int64, error)
}

// Config holds the values a Pipeline is built with.
type Config struct {
	Workers          int
	Target           media.Dimensions
	OutputDir        string
	OperationTimeout time.Duration
	Now              func() time.Time
}

// Request is one compilation.
type Request struct {
	Scope     clips.Scope
	Amount    int
	TimeFrame time.Duration

	// SkipDownload resumes from whatever artifacts are already on disk.
	SkipDownload bool
	SkipResize   bool
	ClearWorkdir bool
	// StrictAnnotate aborts before concatenation when any clip was dropped.
	StrictAnnotate bool
}

func (r Request) validate() error {
	if r.Scope.ID == "" {
		return NewError(ErrValidation, "a game or user scope is required")
	}
	if r.Amount <= 0 {
		return NewError(ErrValidation, fmt.Sprintf("amount must be positive, got %d", r.Amount))
	}
	if r.TimeFrame < 0 {
		return NewError(ErrValidation, fmt.Sprintf("time frame must not be negative, got %s", r.TimeFrame))
	}
	return nil
}

// Drop is a clip that was left out of the output.
type Drop struct {
	Index int
	Step  Step
	Err   error
}

// Report summarizes a run.
type Report struct {
	RunID      string
	Scope      clips.Scope
	StartedAt  time.Time
	FinishedAt time.Time
	Batch      clips.Batch

	Downloaded      []int
	DownloadedBytes int64
	Resized         []int
	// ResizeSkipped lists clips already at the target resolution.
	ResizeSkipped []int
	Annotated     []int
	// Reused lists clips whose existing Annotated artifact was concatenated
	// without re-annotation because no input was left on disk. Their text
	// may not match the current batch.
	Reused  []int
	Dropped []Drop

	Output           string
	NothingToProcess bool
}

// DroppedIndices lists the dropped clip indices in report order.
func (r *Report) DroppedIndices() []int {
	ret := make([]int, 0, len(r.Dropped))
	for _, d := range r.Dropped {
		ret = append(ret, d.Index)
	}
	return ret
}

func (r *Report) isDropped(index int) bool {
	for _, d := range r.Dropped {
		if d.Index == index {
			return true
		}
	}
	return false
}
