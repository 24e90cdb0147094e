package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/mgenware/ku-natives"
	"github.com/spf13/cobra"
)

func newListCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured libraries and their archive and build state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(a)
		},
	}
}

func runList(a *App) error {
	cfg := a.config
	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LIBRARY\tARCHIVE\tBUILT")
	for _, def := range cfg.AllLibraries() {
		archivePath, found := ku.ResolveArchive(cfg.ArchivesDir, def)
		archiveState := archivePath
		if !found {
			archiveState += " (missing)"
		}
		built := "-"
		if info, err := ku.ReadBuildInfo(ku.GetLibDir(cfg.OutputDir, def.Name)); err == nil {
			built = fmt.Sprintf("%s/%s %s", info.OS, info.Arch, info.BuiltAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", def.Name, archiveState, built)
	}
	return w.Flush()
}
