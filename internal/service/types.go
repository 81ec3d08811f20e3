package service

import (
	"context"
	"time"

	"github.com/MimeLyc/clipreel/internal/clips"
	"github.com/MimeLyc/clipreel/internal/persistence"
	"github.com/MimeLyc/clipreel/internal/pipeline"
)

// Resolver turns a game name or user login into a clip scope.
type Resolver interface {
	Resolve(ctx context.Context, kind clips.ScopeKind, name string) (clips.Scope, error)
}

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
}

// Ledger records finished runs.
type Ledger interface {
	RecordRun(ctx context.Context, run persistence.RunRecord) error
	DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error)
}

// CompileRequest is a compilation addressed by scope name.
type CompileRequest struct {
	Kind      clips.ScopeKind
	Name      string
	Amount    int
	TimeFrame time.Duration

	Resume     bool
	SkipResize bool
	Clear      bool
	Strict     bool

	// JobID links the ledger entry to a queued job.
	JobID string
}
