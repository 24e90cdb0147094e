package ku

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mgenware/ku-natives/archive"
	"github.com/mgenware/ku-natives/io2"
)

// SourceInfo is a verified source archive, ready to be staged.
type SourceInfo struct {
	ArchivePath string
	// BLAKE3 hex digest of the archive.
	Digest string
}

// ResolveArchive returns the archive path for def. With no explicit archive
// it tries <archivesDir>/<name> plus each supported extension. When nothing
// exists the first candidate is returned with found=false.
func ResolveArchive(archivesDir string, def *LibraryDef) (path string, found bool) {
	if def.Archive != "" {
		p := def.Archive
		if !filepath.IsAbs(p) {
			p = filepath.Join(archivesDir, p)
		}
		return p, io2.FileExists(p)
	}
	var first string
	for _, ext := range archive.Extensions {
		p := filepath.Join(archivesDir, def.Name+ext)
		if first == "" {
			first = p
		}
		if io2.FileExists(p) {
			return p, true
		}
	}
	return first, false
}

// CheckSource makes sure the archive exists, is readable and matches the
// expected digest. It does not touch any output dir.
func CheckSource(task *LibraryBuildTask) (*SourceInfo, error) {
	if !io2.FileExists(task.ArchivePath) {
		return nil, fmt.Errorf("%w: %s", ErrArchiveMissing, task.ArchivePath)
	}
	if err := io2.FileReadable(task.ArchivePath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveMissing, err)
	}
	digest, err := archive.Digest(task.ArchivePath)
	if err != nil {
		return nil, err
	}
	if want := strings.ToLower(strings.TrimSpace(task.Def.Blake3)); want != "" && want != digest {
		return nil, fmt.Errorf("%w: %s is %s, expected %s", ErrDigestMismatch, task.ArchivePath, digest, want)
	}
	return &SourceInfo{ArchivePath: task.ArchivePath, Digest: digest}, nil
}
