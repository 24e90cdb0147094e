package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// No config needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.Out, "ku version %s\n", Version)
			fmt.Fprintf(a.Out, "%s/%s, %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}
