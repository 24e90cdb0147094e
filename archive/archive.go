// Package archive extracts third-party source archives into a staging directory.
//
// Tarballs that wrap everything in one top-level directory (the usual
// "openjpeg-2.5.2/..." layout) are extracted with that component stripped, so
// the sources land directly in the destination.
package archive

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"lukechampine.com/blake3"
)

type Kind string

const (
	KindTarGz  Kind = "tar.gz"
	KindTarXz  Kind = "tar.xz"
	KindTarZst Kind = "tar.zst"
	KindTarBz2 Kind = "tar.bz2"
	KindTar    Kind = "tar"
	KindZip    Kind = "zip"
)

// Extensions lists the recognized archive suffixes, in lookup order.
var Extensions = []string{".tar.gz", ".tgz", ".tar.xz", ".tar.zst", ".tar.bz2", ".tar", ".zip"}

var ErrUnsupportedFormat = errors.New("unsupported archive format")

// KindOf returns the archive kind by file name suffix.
func KindOf(name string) (Kind, error) {
	switch {
	case strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz"):
		return KindTarGz, nil
	case strings.HasSuffix(name, ".tar.xz"):
		return KindTarXz, nil
	case strings.HasSuffix(name, ".tar.zst"):
		return KindTarZst, nil
	case strings.HasSuffix(name, ".tar.bz2"):
		return KindTarBz2, nil
	case strings.HasSuffix(name, ".tar"):
		return KindTar, nil
	case strings.HasSuffix(name, ".zip"):
		return KindZip, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// Digest returns the hex BLAKE3-256 digest of a file.
func Digest(file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", file, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Extract unpacks src into dest, stripping a single shared top-level directory.
// dest must exist.
func Extract(src, dest string) error {
	kind, err := KindOf(src)
	if err != nil {
		return err
	}
	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}
	if kind == KindZip {
		return extractZip(src, dest)
	}

	// First pass only reads headers to decide on stripping.
	var names []string
	err = walkTar(src, kind, func(hdr *tar.Header, _ io.Reader) error {
		names = append(names, hdr.Name)
		return nil
	})
	if err != nil {
		return err
	}
	prefix := sharedTopDir(names)

	return walkTar(src, kind, func(hdr *tar.Header, r io.Reader) error {
		return writeTarEntry(dest, prefix, hdr, r)
	})
}

func openTar(f *os.File, kind Kind) (io.Reader, func(), error) {
	noop := func() {}
	switch kind {
	case KindTarGz:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, noop, err
		}
		return gz, func() { gz.Close() }, nil
	case KindTarXz:
		r, err := xz.NewReader(f)
		if err != nil {
			return nil, noop, err
		}
		return r, noop, nil
	case KindTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, noop, err
		}
		return zr, zr.Close, nil
	case KindTarBz2:
		return bzip2.NewReader(f), noop, nil
	case KindTar:
		return f, noop, nil
	}
	return nil, noop, fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind)
}

// walkTar calls fn for every content entry, skipping PAX headers.
func walkTar(src string, kind Kind, fn func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	r, closeFn, err := openTar(f, kind)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer closeFn()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", src, err)
		}
		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// sharedTopDir returns "dir/" when every entry is dir itself or lives below it.
func sharedTopDir(names []string) string {
	var top string
	nested := false
	for _, name := range names {
		name = strings.TrimPrefix(name, "./")
		if name == "" || name == "." {
			continue
		}
		first, rest, _ := strings.Cut(name, "/")
		if top == "" {
			top = first
		} else if first != top {
			return ""
		}
		if rest != "" {
			nested = true
		}
	}
	if top == "" || !nested {
		return ""
	}
	return top + "/"
}

// targetPath maps an archive entry name into dest, or returns "" when the
// entry is the stripped top directory itself.
func targetPath(dest, prefix, name string) (string, error) {
	name = strings.TrimPrefix(name, "./")
	if prefix != "" {
		if name+"/" == prefix || name == prefix {
			return "", nil
		}
		name = strings.TrimPrefix(name, prefix)
	}
	name = path.Clean("/" + name)[1:]
	if name == "" {
		return "", nil
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !insideDest(dest, target) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return target, nil
}

func insideDest(dest, p string) bool {
	rel, err := filepath.Rel(dest, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

// checkParents rejects a target whose existing parent dirs below dest
// include a symlink, so nothing is ever written through a link.
func checkParents(dest, target string) error {
	rel, err := filepath.Rel(dest, filepath.Dir(target))
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	cur := dest
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("illegal file path in archive: %s is below symlink %s", target, cur)
		}
	}
	return nil
}

// removeSymlink drops an existing link at target so the following write
// creates a fresh file instead of following it.
func removeSymlink(target string) error {
	fi, err := os.Lstat(target)
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	return os.Remove(target)
}

func writeTarEntry(dest, prefix string, hdr *tar.Header, r io.Reader) error {
	target, err := targetPath(dest, prefix, hdr.Name)
	if err != nil || target == "" {
		return err
	}
	if err := checkParents(dest, target); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0700); err != nil {
			return fmt.Errorf("failed to create dir %s: %w", target, err)
		}
	case tar.TypeReg, 0:
		if err := removeSymlink(target); err != nil {
			return err
		}
		if err := writeFile(target, os.FileMode(hdr.Mode).Perm(), r); err != nil {
			return err
		}
		_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)
	case tar.TypeSymlink:
		if filepath.IsAbs(hdr.Linkname) || !insideDest(dest, filepath.Join(filepath.Dir(target), filepath.FromSlash(hdr.Linkname))) {
			return fmt.Errorf("illegal symlink in archive: %s -> %s", hdr.Name, hdr.Linkname)
		}
		_ = os.Remove(target)
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return fmt.Errorf("failed to create symlink %s -> %s: %w", target, hdr.Linkname, err)
		}
	case tar.TypeLink:
		old, err := targetPath(dest, prefix, hdr.Linkname)
		if err != nil {
			return err
		}
		if err := checkParents(dest, old); err != nil {
			return err
		}
		_ = os.Remove(target)
		if err := os.Link(old, target); err != nil {
			return fmt.Errorf("failed to create hard link %s: %w", target, err)
		}
	}
	// Devices, fifos and the like have no place in a source tree.
	return nil
}

func writeFile(target string, mode os.FileMode, r io.Reader) error {
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}
	return out.Close()
}

func extractZip(src, dest string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	prefix := sharedTopDir(names)

	for _, f := range zr.File {
		target, err := targetPath(dest, prefix, f.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		if err := checkParents(dest, target); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := removeSymlink(target); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("reading %s in %s: %w", f.Name, src, err)
		}
		err = writeFile(target, f.Mode().Perm(), rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
