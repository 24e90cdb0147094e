package ku

import (
	"errors"
	"fmt"

	"github.com/mgenware/ku-natives/gate"
)

var (
	ErrUnsupportedOS   = errors.New("unsupported OS")
	ErrArchiveMissing  = errors.New("source archive missing")
	ErrDigestMismatch  = errors.New("source archive digest mismatch")
	ErrArtifactMissing = errors.New("expected artifact missing")
	ErrUnknownLibrary  = errors.New("unknown library")
	ErrAborted         = gate.ErrAborted
)

// Pipeline steps, in execution order.
const (
	StepStage     = "stage"
	StepConfigure = "configure"
	StepPatch     = "patch"
	StepBuild     = "build"
	StepInstall   = "install"
	StepCopy      = "copy"
	StepVerify    = "verify"
)

// StepError records which step of which library failed.
type StepError struct {
	Op      string
	Library string
	Err     error
}

func (e *StepError) Error() string {
	if e.Library == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Library, e.Op, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(op, lib string, err error) error {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) && se.Library == lib {
		return err
	}
	return &StepError{Op: op, Library: lib, Err: err}
}
