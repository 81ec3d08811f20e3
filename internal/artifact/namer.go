package artifact

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Ext is the container extension shared by every artifact.
const Ext = ".mp4"

// Stage is the pipeline stage an artifact has reached.
type Stage int

const (
	Raw Stage = iota
	Resized
	Annotated
)

// stage prefixes; Raw carries none
const (
	resizedPrefix   = "resized"
	annotatedPrefix = "text"
)

var ErrUnrecognized = errors.New("unrecognized artifact")

func (s Stage) String() string {
	switch s {
	case Raw:
		return "raw"
	case Resized:
		return "resized"
	case Annotated:
		return "annotated"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

func (s Stage) valid() bool {
	return s >= Raw && s <= Annotated
}

func (s Stage) prefix() string {
	switch s {
	case Resized:
		return resizedPrefix
	case Annotated:
		return annotatedPrefix
	default:
		return ""
	}
}

// Artifact identifies one file of the working directory.
type Artifact struct {
	Index int
	Stage Stage
}

func (a Artifact) Name() string {
	return Name(a.Index, a.Stage)
}

// Name returns the canonical file name for a clip index at a stage.
// It panics on a negative index or unknown stage: both are caller bugs.
func Name(index int, stage Stage) string {
	if index < 0 {
		panic(fmt.Sprintf("artifact: negative clip index %d", index))
	}
	if !stage.valid() {
		panic(fmt.Sprintf("artifact: unknown %s", stage))
	}
	return stage.prefix() + strconv.Itoa(index) + Ext
}

// Parse is the inverse of Name.
func Parse(name string) (Artifact, error) {
	base, ok := strings.CutSuffix(name, Ext)
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %q has no %s extension", ErrUnrecognized, name, Ext)
	}

	stage := Raw
	switch {
	case strings.HasPrefix(base, resizedPrefix):
		stage, base = Resized, base[len(resizedPrefix):]
	case strings.HasPrefix(base, annotatedPrefix):
		stage, base = Annotated, base[len(annotatedPrefix):]
	}

	index, ok := parseIndex(base)
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnrecognized, name)
	}
	return Artifact{Index: index, Stage: stage}, nil
}

// parseIndex accepts canonical decimal only, so "07" or "+7" never alias "7".
func parseIndex(s string) (int, bool) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
