package cli

import (
	"fmt"
	"os"

	"github.com/mgenware/ku-natives/pkgdiff"
	"github.com/mgenware/ku-natives/remote"
	"github.com/spf13/cobra"
)

type collectFlags struct {
	outDir string
	upload bool
}

func newCollectCmd(a *App) *cobra.Command {
	f := &collectFlags{}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Snapshot packages, pkg-config metadata and environment (Linux)",
		Long: `Write package_list_<host>_<version>_<timestamp>.txt and its .all, .dpkg_full,
.pkgconfig_all and .env_all siblings. Compare two hosts with diff.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, a, f)
		},
	}
	cmd.Flags().StringVarP(&f.outDir, "out", "o", pkgdiff.DefaultOutDir, "Directory for the snapshot files.")
	cmd.Flags().BoolVar(&f.upload, "upload", false, "Upload the files to the KU_S3_* bucket.")
	return cmd
}

func runCollect(cmd *cobra.Command, a *App, f *collectFlags) error {
	ctx := cmd.Context()

	// Check upload settings before spending time on collection.
	var s3cfg *remote.Config
	if f.upload {
		s3cfg = remote.ConfigFromEnv(os.Getenv)
		s3cfg.Debug = a.args.Verbose >= 2
		if err := s3cfg.Validate(); err != nil {
			return err
		}
	}

	c := &pkgdiff.Collector{
		Runner:   a.runner(),
		OutDir:   f.outDir,
		Progress: a.Err,
		Logger:   a.logger,
	}
	snap, files, err := c.Collect(ctx)
	if err != nil {
		return err
	}
	for _, p := range files.List() {
		fmt.Fprintln(a.Out, p)
	}

	if s3cfg != nil {
		u, err := a.uploader(ctx, s3cfg)
		if err != nil {
			return err
		}
		ts := snap.Timestamp.Format(pkgdiff.TimestampLayout)
		keys, err := remote.UploadFiles(ctx, u, snap.Hostname, ts, files.List())
		for _, k := range keys {
			colInfo.Fprintf(a.Out, "uploaded s3://%s/%s\n", s3cfg.Bucket, k)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
