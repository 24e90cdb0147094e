package io2

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func pathExistsCore(path string) (os.FileInfo, error) {
	if fileInfo, err := os.Stat(path); err == nil {
		return fileInfo, nil
	} else if os.IsNotExist(err) {
		return nil, nil
	} else {
		return nil, err
	}
}

func FileExists(file string) bool {
	info, err := pathExistsCore(file)
	if err != nil {
		return false
	}
	return info != nil && !info.IsDir()
}

func DirectoryExists(dir string) bool {
	info, err := pathExistsCore(dir)
	if err != nil {
		return false
	}
	return info != nil && info.IsDir()
}

// FileReadable reports an error if file is missing, is a directory or cannot be opened.
func FileReadable(file string) error {
	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", file)
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	return f.Close()
}

func IsDirectoryEmpty(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}

func Mkdirp(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// CleanDir removes dir (absence is fine) and recreates it empty.
func CleanDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return Mkdirp(dir)
}

// CleanDirs runs CleanDir on every dir, stopping at the first error.
func CleanDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := CleanDir(dir); err != nil {
			return fmt.Errorf("recreating %s: %w", dir, err)
		}
	}
	return nil
}

// CopyFile copies src to dst, keeping the source permission bits.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := Mkdirp(filepath.Dir(dst)); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CopyDir copies the contents of src into dst. Symlinks are recreated, not followed.
func CopyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(link, target)
		default:
			return CopyFile(path, target)
		}
	})
}
