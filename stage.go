package ku

import (
	"context"
	"fmt"

	"github.com/mgenware/ku-natives/archive"
	"github.com/mgenware/ku-natives/io2"
)

// Stage wipes and recreates the task's output dirs and extracts its source
// archive into OutputSrc. A missing or mismatching archive fails before
// anything is removed.
func (bc *BuildContext) Stage(ctx context.Context, task *LibraryBuildTask) (*SourceInfo, error) {
	src, err := CheckSource(task)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	statements := make([]string, 0, 4)
	for _, dir := range task.OutputDirs() {
		statements = append(statements, "Removing "+dir)
	}
	statements = append(statements, fmt.Sprintf("Extracting %s into %s", src.ArchivePath, task.OutputSrc))
	if err := bc.Gate.Confirm(statements...); err != nil {
		return nil, err
	}

	if err := io2.CleanDirs(task.OutputDirs()...); err != nil {
		return nil, err
	}
	bc.log(task, StepStage).WithField("digest", src.Digest).Info("extracting " + src.ArchivePath)
	if err := archive.Extract(src.ArchivePath, task.OutputSrc); err != nil {
		return nil, fmt.Errorf("extracting %s: %w", src.ArchivePath, err)
	}
	return src, nil
}
