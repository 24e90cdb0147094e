package ku

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mgenware/ku-natives/archive"
	"github.com/mgenware/ku-natives/io2"
	"gopkg.in/yaml.v3"
)

const BuildInfoFileName = "BUILDINFO.yaml"

// BuildArtifacts is what a successful task leaves in the output tree.
type BuildArtifacts struct {
	// output/include/<lib>
	HeaderDir string
	// output/lib/<lib>/<lib>.a
	StaticLibFile string
}

// BuildInfo is written next to the static archive.
type BuildInfo struct {
	Library        string    `yaml:"library"`
	OS             OSEnum    `yaml:"os"`
	Arch           ArchEnum  `yaml:"arch"`
	Jobs           int       `yaml:"jobs"`
	Archive        string    `yaml:"archive"`
	ArchiveDigest  string    `yaml:"archive_blake3"`
	ArtifactDigest string    `yaml:"artifact_blake3"`
	Headers        []string  `yaml:"headers"`
	BuiltAt        time.Time `yaml:"built_at"`
}

// installedHeaderDirs returns the include dirs to copy from the install prefix.
func installedHeaderDirs(task *LibraryBuildTask) ([]string, error) {
	includeDir := filepath.Join(task.InstallDir(), "include")
	if task.Def.HeaderGlob == "" {
		if !io2.DirectoryExists(includeDir) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, includeDir)
		}
		return []string{includeDir}, nil
	}
	matches, err := filepath.Glob(filepath.Join(includeDir, task.Def.HeaderGlob))
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, m := range matches {
		if io2.DirectoryExists(m) {
			dirs = append(dirs, m)
		}
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w: no %s dir in %s", ErrArtifactMissing, task.Def.HeaderGlob, includeDir)
	}
	return dirs, nil
}

// installedStaticLib looks in lib and lib64 since GNUInstallDirs picks
// either depending on the distro.
func installedStaticLib(task *LibraryBuildTask) (string, error) {
	name := task.Def.StaticLibName()
	var tried []string
	for _, dir := range []string{"lib", "lib64"} {
		p := filepath.Join(task.InstallDir(), dir, name)
		if io2.FileExists(p) {
			return p, nil
		}
		tried = append(tried, p)
	}
	return "", fmt.Errorf("%w: %v", ErrArtifactMissing, tried)
}

// CopyArtifacts copies installed headers and the static archive into the
// shared output tree.
func (bc *BuildContext) CopyArtifacts(task *LibraryBuildTask) (*BuildArtifacts, error) {
	headerDirs, err := installedHeaderDirs(task)
	if err != nil {
		return nil, err
	}
	libFile, err := installedStaticLib(task)
	if err != nil {
		return nil, err
	}

	if err := io2.Mkdirp(task.OutputInclude); err != nil {
		return nil, err
	}
	for _, dir := range headerDirs {
		if err := io2.CopyDir(dir, task.OutputInclude); err != nil {
			return nil, err
		}
	}
	if empty, err := io2.IsDirectoryEmpty(task.OutputInclude); err != nil {
		return nil, err
	} else if empty {
		return nil, fmt.Errorf("%w: no headers installed for %s", ErrArtifactMissing, task.Name)
	}

	art := &BuildArtifacts{
		HeaderDir:     task.OutputInclude,
		StaticLibFile: filepath.Join(task.OutputLib, task.Def.OutputLibFileName()),
	}
	if err := io2.Mkdirp(task.OutputLib); err != nil {
		return nil, err
	}
	if err := io2.CopyFile(libFile, art.StaticLibFile); err != nil {
		return nil, err
	}
	bc.log(task, StepCopy).Infof("copied %s and headers to %s", art.StaticLibFile, art.HeaderDir)
	return art, nil
}

// WriteBuildInfo records where an artifact came from.
func (bc *BuildContext) WriteBuildInfo(task *LibraryBuildTask, src *SourceInfo, art *BuildArtifacts) (string, error) {
	digest, err := archive.Digest(art.StaticLibFile)
	if err != nil {
		return "", err
	}
	headers, err := listFiles(art.HeaderDir)
	if err != nil {
		return "", err
	}
	info := &BuildInfo{
		Library:        task.Name,
		OS:             bc.Platform.OS,
		Arch:           bc.Platform.Arch,
		Jobs:           bc.jobs(),
		Archive:        filepath.Base(src.ArchivePath),
		ArchiveDigest:  src.Digest,
		ArtifactDigest: digest,
		Headers:        headers,
		BuiltAt:        bc.now().UTC(),
	}
	data, err := yaml.Marshal(info)
	if err != nil {
		return "", err
	}
	p := filepath.Join(task.OutputLib, BuildInfoFileName)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

// ReadBuildInfo loads a receipt written by WriteBuildInfo.
func ReadBuildInfo(libDir string) (*BuildInfo, error) {
	data, err := os.ReadFile(filepath.Join(libDir, BuildInfoFileName))
	if err != nil {
		return nil, err
	}
	var info BuildInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func listFiles(root string) ([]string, error) {
	var res []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		res = append(res, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(res)
	return res, err
}
