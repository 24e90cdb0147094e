package ku

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mgenware/ku-natives/patch"
	"github.com/schollz/progressbar/v3"
)

// TaskResult is the outcome of one library. Err is nil on success.
type TaskResult struct {
	Library   string
	Source    *SourceInfo
	Patch     *patch.Result
	Artifacts *BuildArtifacts
	BuildInfo string
	Duration  time.Duration
	Err       error
}

// RunTask drives one library through
// stage -> configure -> patch (Linux) -> build -> install -> copy -> verify.
// The first failing step ends the task.
func RunTask(ctx context.Context, bc *BuildContext, task *LibraryBuildTask) *TaskResult {
	start := bc.now()
	res := &TaskResult{Library: task.Name}
	res.Err = runTask(ctx, bc, task, res)
	res.Duration = bc.now().Sub(start)
	if res.Err != nil {
		bc.Logger.WithField("lib", task.Name).WithError(res.Err).Error("build failed")
	} else {
		bc.Logger.WithField("lib", task.Name).Infof("built in %s", res.Duration.Round(time.Millisecond))
	}
	return res
}

func runTask(ctx context.Context, bc *BuildContext, task *LibraryBuildTask, res *TaskResult) error {
	src, err := bc.Stage(ctx, task)
	if err != nil {
		return stepErr(StepStage, task.Name, err)
	}
	res.Source = src

	if err := bc.Configure(ctx, task); err != nil {
		return stepErr(StepConfigure, task.Name, err)
	}

	if bc.Platform.IsLinux() {
		pr, err := bc.Patch(task)
		if err != nil {
			return stepErr(StepPatch, task.Name, err)
		}
		res.Patch = pr
	}

	if err := bc.Build(ctx, task); err != nil {
		return stepErr(StepBuild, task.Name, err)
	}
	if err := bc.Install(ctx, task); err != nil {
		return stepErr(StepInstall, task.Name, err)
	}

	art, err := bc.CopyArtifacts(task)
	if err != nil {
		return stepErr(StepCopy, task.Name, err)
	}
	res.Artifacts = art
	if res.BuildInfo, err = bc.WriteBuildInfo(task, src, art); err != nil {
		return stepErr(StepCopy, task.Name, err)
	}

	if err := bc.Verify(task, art); err != nil {
		return stepErr(StepVerify, task.Name, err)
	}
	return nil
}

type RunAllOptions struct {
	BeforeEachFn func(*LibraryBuildTask)
	AfterEachFn  func(*LibraryBuildTask, *TaskResult)
}

// RunAll builds tasks one after another. A failed task does not stop the
// others; a cancelled ctx does. The returned error is the first failure.
func RunAll(ctx context.Context, bc *BuildContext, tasks []*LibraryBuildTask, opt *RunAllOptions) ([]*TaskResult, error) {
	if opt == nil {
		opt = &RunAllOptions{}
	}

	var bar *progressbar.ProgressBar
	if bc.ProgressOut != nil && bc.Gate.IsInteractive() && len(tasks) > 1 {
		bar = progressbar.NewOptions(len(tasks),
			progressbar.OptionSetWriter(bc.ProgressOut),
			progressbar.OptionSetDescription("Building"),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(bc.ProgressOut)
			}),
		)
	}

	results := make([]*TaskResult, 0, len(tasks))
	var firstErr error
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			res := &TaskResult{Library: task.Name, Err: stepErr(StepStage, task.Name, err)}
			results = append(results, res)
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		if bar != nil {
			_ = bar.Clear()
		}
		if opt.BeforeEachFn != nil {
			opt.BeforeEachFn(task)
		}

		res := RunTask(ctx, bc, task)
		results = append(results, res)
		if res.Err != nil && firstErr == nil {
			firstErr = res.Err
		}

		if opt.AfterEachFn != nil {
			opt.AfterEachFn(task, res)
		}
		if bar != nil {
			bar.Describe(task.Name)
			_ = bar.Add(1)
		}
	}
	return results, firstErr
}

// Failed returns the results that carry an error.
func Failed(results []*TaskResult) []*TaskResult {
	var res []*TaskResult
	for _, r := range results {
		if r.Err != nil {
			res = append(res, r)
		}
	}
	return res
}

// PrintSummary writes one colored line per result.
func PrintSummary(w io.Writer, results []*TaskResult) {
	for _, r := range results {
		if r.Err == nil {
			colSuccess.Fprintf(w, "OK    %s", r.Library)
			if r.Artifacts != nil {
				fmt.Fprintf(w, " -> %s", r.Artifacts.StaticLibFile)
			}
			fmt.Fprintln(w)
			continue
		}
		step, cause := "?", r.Err
		var se *StepError
		if errors.As(r.Err, &se) {
			step, cause = se.Op, se.Err
		}
		colFailure.Fprintf(w, "FAIL  %s", r.Library)
		fmt.Fprintf(w, " (%s): %v\n", step, cause)
	}
}
