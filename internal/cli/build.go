package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/mgenware/ku-natives"
	"github.com/mgenware/ku-natives/gate"
	"github.com/mgenware/ku-natives/inspect"
	"github.com/spf13/cobra"
)

var (
	colErr  = color.New(color.FgRed, color.Bold)
	colInfo = color.New(color.FgCyan)
)

func newBuildCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "build [library...]",
		Short: "Build libraries from their source archives",
		Long: `Stage, configure, patch (Linux), build, install and copy each library into
output/include/<lib>/ and output/lib/<lib>/<lib>.a. With no arguments every
configured library is built.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, a, args)
		},
	}
}

func newBuildContext(a *App, cfg *ku.Config) (*ku.BuildContext, error) {
	platform, err := ku.DetectPlatform(cfg.Platform, cfg.Jobs)
	if err != nil {
		return nil, err
	}
	g := &gate.Gate{In: a.In, Out: a.Out, Interactive: gate.Detect(cfg.NonInteractive)}

	var insp inspect.Inspector
	if cfg.Verify {
		insp = a.inspector()
	}
	bc := ku.NewBuildContext(&ku.BuildContextInitOptions{
		Platform:  platform,
		Config:    cfg,
		Runner:    a.runner(),
		Gate:      g,
		Inspector: insp,
		Logger:    a.logger,
	})
	bc.ProgressOut = a.Err
	return bc, nil
}

func runBuild(cmd *cobra.Command, a *App, names []string) error {
	cfg := a.config
	// Platform first: an unsupported OS must fail before any file is touched.
	bc, err := newBuildContext(a, cfg)
	if err != nil {
		return err
	}
	defs, err := cfg.FindLibraries(names)
	if err != nil {
		return err
	}
	tasks := ku.NewLibraryBuildTasks(cfg, defs)

	ku.PrintBanner(a.Out, fmt.Sprintf("Building %d librar%s for %s", len(tasks), plural(len(tasks)), bc.Platform))
	results, err := ku.RunAll(cmd.Context(), bc, tasks, &ku.RunAllOptions{
		BeforeEachFn: func(t *ku.LibraryBuildTask) {
			colInfo.Fprintf(a.Out, "-- %s\n", t.Name)
		},
	})
	ku.PrintSummary(a.Out, results)
	return err
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
