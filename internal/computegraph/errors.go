package computegraph

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"computegraph/internal/shader"
)

// AuthoringErrorKind classifies a malformed graph.
type AuthoringErrorKind int

const (
	ErrKindIndex AuthoringErrorKind = iota
	ErrKindNil
	ErrKindSignature
	ErrKindBindingRange
	ErrKindDuplicateBinding
	ErrKindLateWriter
	ErrKindCycle
)

func (k AuthoringErrorKind) String() string {
	switch k {
	case ErrKindIndex:
		return "index"
	case ErrKindNil:
		return "nil"
	case ErrKindSignature:
		return "signature"
	case ErrKindBindingRange:
		return "binding-range"
	case ErrKindDuplicateBinding:
		return "duplicate-binding"
	case ErrKindLateWriter:
		return "late-writer"
	case ErrKindCycle:
		return "cycle"
	}
	return fmt.Sprintf("AuthoringErrorKind(%d)", int(k))
}

// AuthoringError describes one problem with a graph's topology.
// Indices that do not apply are -1.
type AuthoringError struct {
	Kind               AuthoringErrorKind
	KernelIndex        int
	DataInterfaceIndex int
	EdgeIndex          int
	Reason             string
}

func (e AuthoringError) Error() string {
	var loc []string
	if e.EdgeIndex >= 0 {
		loc = append(loc, fmt.Sprintf("edge %d", e.EdgeIndex))
	}
	if e.KernelIndex >= 0 {
		loc = append(loc, fmt.Sprintf("kernel %d", e.KernelIndex))
	}
	if e.DataInterfaceIndex >= 0 {
		loc = append(loc, fmt.Sprintf("data interface %d", e.DataInterfaceIndex))
	}
	return fmt.Sprintf("computegraph: %s (%s): %s", e.Kind, strings.Join(loc, ", "), e.Reason)
}

func authoringError(kind AuthoringErrorKind, edge, kernel, di int, format string, args ...any) AuthoringError {
	return AuthoringError{
		Kind:               kind,
		KernelIndex:        kernel,
		DataInterfaceIndex: di,
		EdgeIndex:          edge,
		Reason:             fmt.Sprintf(format, args...),
	}
}

// CompileError is a kernel that failed to compile for one platform and
// feature level.
type CompileError struct {
	Resource     string
	FeatureLevel shader.FeatureLevel
	Platform     shader.Platform
	Diagnostics  []string
	Err          error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("computegraph: compile %s for %s/%s failed: %v", e.Resource, e.Platform, e.FeatureLevel, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Binding errors. They invalidate one instance for one frame and are
// never fatal.
var (
	ErrMissingSource      = errors.New("computegraph: missing source object")
	ErrSourceTypeMismatch = errors.New("computegraph: source object has the wrong type")
	ErrInvalidProvider    = errors.New("computegraph: invalid data provider")
)

// FatalHandler is called when a default kernel fails to compile.
// Tests replace it to observe the failure instead of exiting.
var FatalHandler = func(err error) {
	slog.Error("fatal: default compute kernel failed to compile", "err", err)
	os.Exit(1)
}
