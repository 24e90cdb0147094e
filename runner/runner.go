// Package runner spawns external tools (cmake, pkg-config, dpkg-query...) and
// keeps their exit status around so callers can propagate it.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// SpawnOpt describes one external command.
type SpawnOpt struct {
	Name string
	Args []string
	// Extra KEY=VALUE pairs appended to the current environment.
	Env        []string
	WorkingDir string
}

func (o *SpawnOpt) String() string {
	if len(o.Args) == 0 {
		return o.Name
	}
	return o.Name + " " + strings.Join(o.Args, " ")
}

type Runner interface {
	// Spawn runs the command with output streamed to the runner's writers.
	Spawn(ctx context.Context, opt *SpawnOpt) error
	// Output runs the command and returns its stdout.
	Output(ctx context.Context, opt *SpawnOpt) (string, error)
}

// ExitError is returned when a tool ran but exited non-zero.
type ExitError struct {
	Name string
	Args []string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
}

// ExitCode returns the code of the first ExitError in err's chain.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// Exec runs commands on the local host.
type Exec struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *logrus.Logger
}

func NewExec(logger *logrus.Logger) *Exec {
	return &Exec{Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
}

func (e *Exec) command(ctx context.Context, opt *SpawnOpt) *exec.Cmd {
	if opt == nil || opt.Name == "" {
		panic("runner: empty SpawnOpt")
	}
	cmd := exec.CommandContext(ctx, opt.Name, opt.Args...)
	cmd.Dir = opt.WorkingDir
	cmd.Env = append(os.Environ(), opt.Env...)
	setProcessGroup(cmd)
	if e.Logger != nil {
		e.Logger.WithField("dir", opt.WorkingDir).Debug("spawn: " + opt.String())
	}
	return cmd
}

func (e *Exec) Spawn(ctx context.Context, opt *SpawnOpt) error {
	cmd := e.command(ctx, opt)
	cmd.Stdout = writerOr(e.Stdout, os.Stdout)
	cmd.Stderr = writerOr(e.Stderr, os.Stderr)
	return wrapRunError(ctx, opt, cmd.Run())
}

func (e *Exec) Output(ctx context.Context, opt *SpawnOpt) (string, error) {
	cmd := e.command(ctx, opt)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = io.Discard
	err := wrapRunError(ctx, opt, cmd.Run())
	return out.String(), err
}

func wrapRunError(ctx context.Context, opt *SpawnOpt, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s aborted: %w", opt.Name, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Name: opt.Name, Args: opt.Args, Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("failed to start %s: %w", opt.Name, err)
}

func writerOr(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
