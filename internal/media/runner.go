package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/MimeLyc/clipreel/pkg/log"
)

// stderrLimit bounds how much subprocess stderr is kept per command.
const stderrLimit = 8 << 10

// ExecRunner runs commands as local subprocesses. A command is killed when
// ctx is done; callers own the deadline.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) Result {
	start := time.Now()

	path, err := exec.LookPath(c.Program)
	if err != nil {
		return Result{ExitCode: -1, Err: fmt.Errorf("%s not found in PATH: %w", c.Program, err)}
	}

	log.Debug("Executing %s", c)
	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.WaitDelay = 5 * time.Second

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err = cmd.Run()
	res := Result{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: time.Since(start),
	}
	if err == nil {
		return res
	}

	res.Err = err
	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
	}
	return res
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
