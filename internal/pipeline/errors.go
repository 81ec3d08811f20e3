package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/clipreel/pkg/log"
)

type ErrorType int

const (
	ErrSourceUnavailable ErrorType = iota
	ErrDownloadFailed
	ErrTranscodeFailed
	ErrConcatenationFailed
	ErrUnrecognizedArtifact
	ErrValidation
	ErrWorkspace
	ErrUnknown
)

func (t ErrorType) String() string {
	switch t {
	case ErrSourceUnavailable:
		return "SourceUnavailable"
	case ErrDownloadFailed:
		return "DownloadFailed"
	case ErrTranscodeFailed:
		return "TranscodeFailed"
	case ErrConcatenationFailed:
		return "ConcatenationFailed"
	case ErrUnrecognizedArtifact:
		return "UnrecognizedArtifact"
	case ErrValidation:
		return "Validation"
	case ErrWorkspace:
		return "Workspace"
	default:
		return "Unknown"
	}
}

// Error is the failure type of a pipeline run. Index is -1 when the error
// is not tied to a single clip.
type Error struct {
	Type    ErrorType
	Message string
	Index   int
	Step    Step
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Index:   -1,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	e := NewError(errorType, message)
	e.Cause = cause
	return e
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return NewErrorWithCause(errorType, message, err)
}

func (e *Error) Error() string {
	var parts []string
	head := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Index >= 0 {
		head = fmt.Sprintf("[%s] clip %d", e.Type, e.Index)
		if e.Step != "" {
			head += " (" + string(e.Step) + ")"
		}
		if e.Message != "" {
			head += ": " + e.Message
		}
	}
	parts = append(parts, head)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

// ForClip ties the error to one clip index and the step it failed in.
func (e *Error) ForClip(index int, step Step) *Error {
	e.Index = index
	e.Step = step
	return e
}

func IsErrorType(err error, errorType ErrorType) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Type == errorType
	}
	return false
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *Error) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err with advice and reports whether it was a pipeline error.
func (h *DefaultErrorHandler) Handle(err error) bool {
	var pErr *Error
	if !errors.As(err, &pErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	log.Error("Error Detail: %v\n advice: %s", err, h.GetAdvice(pErr))
	return true
}

func (h *DefaultErrorHandler) GetAdvice(err *Error) string {
	switch err.Type {
	case ErrSourceUnavailable:
		return "Please check the Twitch client id and token, network connectivity, and that the game or user name exists"
	case ErrDownloadFailed:
		return "The clip media could not be fetched; rerun with --resume to retry only the missing clips"
	case ErrTranscodeFailed:
		return "Please check that ffmpeg and ffprobe are installed and that the operation timeout is long enough"
	case ErrConcatenationFailed:
		return "No output was written; inspect the working directory with 'clipreel workdir' and rerun with --resume"
	case ErrUnrecognizedArtifact:
		return "The working directory holds files outside the naming convention; they are ignored by runs"
	case ErrValidation:
		return "Please verify the request: a game or user, a positive amount and a valid time frame are required"
	case ErrWorkspace:
		return "Please ensure the working and output directories are writable and not used by another run"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

// SafeExecute runs fn and converts a panic into an error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
