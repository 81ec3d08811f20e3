package media

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind names the operation a Command performs.
type Kind string

const (
	KindProbe       Kind = "probe"
	KindResize      Kind = "resize"
	KindAnnotate    Kind = "annotate"
	KindConcatenate Kind = "concatenate"
)

// Command is one subprocess invocation.
type Command struct {
	Kind    Kind
	Program string
	Args    []string
}

func (c Command) String() string {
	return c.Program + " " + strings.Join(c.Args, " ")
}

// Result is the terminal status of a Command.
type Result struct {
	ExitCode int
	TimedOut bool
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
	Err      error
}

func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0 && !r.TimedOut
}

// Failure describes a non-OK result as an error, nil when OK.
func (r Result) Failure(kind Kind) error {
	if r.OK() {
		return nil
	}
	if r.TimedOut {
		return fmt.Errorf("%s timed out after %s", kind, r.Elapsed.Round(time.Millisecond))
	}
	msg := lastLine(r.Stderr)
	if msg == "" && r.Err != nil {
		msg = r.Err.Error()
	}
	return fmt.Errorf("%s exited with code %d: %s", kind, r.ExitCode, msg)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// Runner executes commands synchronously. Implementations must honour ctx
// and report a deadline as Result.TimedOut.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// Dimensions is a video frame size in pixels.
type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Overlay is the pair of captions burnt into a clip.
type Overlay struct {
	Title           string
	BroadcasterName string
}

type Operator interface {
	Dimensions(ctx context.Context, path string) (Dimensions, error)
	Resize(ctx context.Context, input, output string, size Dimensions) Result
	Annotate(ctx context.Context, input, output string, overlay Overlay) Result
	Concatenate(ctx context.Context, inputs []string, output string) Result
}
