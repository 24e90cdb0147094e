package cli

import (
	"context"
	"io"
	"os"

	"github.com/mgenware/ku-natives"
	"github.com/mgenware/ku-natives/inspect"
	"github.com/mgenware/ku-natives/remote"
	"github.com/mgenware/ku-natives/runner"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is overridden at link time.
var Version = "0.1.0"

// App holds the I/O and collaborators of one invocation. Nil collaborators
// are replaced by the real host implementations.
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	Runner      runner.Runner
	Inspector   inspect.Inspector
	NewUploader func(ctx context.Context, cfg *remote.Config) (remote.Uploader, error)

	args   ku.CLIArgs
	config *ku.Config
	logger *logrus.Logger
}

func NewApp() *App {
	return &App{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

func (a *App) runner() runner.Runner {
	if a.Runner != nil {
		return a.Runner
	}
	e := runner.NewExec(a.logger)
	e.Stdout = a.Out
	e.Stderr = a.Err
	return e
}

func (a *App) inspector() inspect.Inspector {
	if a.Inspector != nil {
		return a.Inspector
	}
	return inspect.NewTunnelInspector(ku.CreateDefaultTunnel())
}

func (a *App) uploader(ctx context.Context, cfg *remote.Config) (remote.Uploader, error) {
	if a.NewUploader != nil {
		return a.NewUploader(ctx, cfg)
	}
	return remote.NewClient(ctx, cfg)
}

// NewRootCmd builds the ku command tree bound to a.
func NewRootCmd(a *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "ku",
		Short: "Native library build orchestrator",
		Long: `ku - builds third-party C/C++ libraries from source archives into static
libraries for Darwin (universal) and Linux, and snapshots host package state
for diffing between machines.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.logger = ku.NewLogger(a.args.Verbosity(), a.Err)
			cfg, err := ku.LoadRunConfig(&a.args, cmd.Flags())
			if err != nil {
				return err
			}
			a.config = cfg
			return nil
		},
	}
	root.SetIn(a.In)
	root.SetOut(a.Out)
	root.SetErr(a.Err)

	a.args.BindFlags(root.PersistentFlags())

	root.AddCommand(newBuildCmd(a))
	root.AddCommand(newCollectCmd(a))
	root.AddCommand(newListCmd(a))
	root.AddCommand(newVersionCmd(a))
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, a *App, args []string) int {
	root := NewRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		colErr.Fprintf(a.Err, "Error: %v\n", err)
	}
	return ExitCode(err)
}

// ExitCode is 0 for nil, the exit code of the first failing external tool
// when there is one, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := runner.ExitCode(err); ok && code > 0 {
		return code
	}
	return 1
}
