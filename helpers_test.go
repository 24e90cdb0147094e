package ku

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/mgenware/ku-natives/gate"
	"github.com/mgenware/ku-natives/runner"
	"github.com/stretchr/testify/require"
)

const linkTxt = "src/lib/openjp2/CMakeFiles/openjp2.dir/link.txt"

// writeSourceArchive creates a tar.gz with a single top-level dir, like a
// release tarball.
func writeSourceArchive(t *testing.T, path, top string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := pgzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755}))
	files := map[string]string{
		top + "/CMakeLists.txt":             "project(openjpeg C)\n",
		top + "/src/lib/openjp2/openjpeg.h": "#define OPENJPEG_H\n",
		top + "/src/lib/openjp2/openjpeg.c": "int opj_version(void) { return 2; }\n",
		top + "/cmake/FindWebP.cmake":       "find_library(WEBP_LIBRARY webp)\n",
	}
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		body := files[n]
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: n, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
}

// fakeCmake simulates cmake on a host where pkg-config reports webp but
// libwebp is absent: configure writes -lwebp into the cache and link line,
// and the build fails if the link line still references it.
type fakeCmake struct {
	// Install writes nothing when set.
	skipInstall bool
	// Returned by the configure call.
	configureErr error
}

func (fc *fakeCmake) handle(opt *runner.SpawnOpt) (string, error) {
	if opt.Name != "cmake" {
		return "", &runner.ExitError{Name: opt.Name, Code: 127}
	}
	buildDir := opt.WorkingDir
	installDir := filepath.Join(filepath.Dir(buildDir), "_install")
	switch opt.Args[0] {
	case "--build":
		data, err := os.ReadFile(filepath.Join(buildDir, linkTxt))
		if err != nil {
			return "", err
		}
		for _, tok := range strings.Fields(string(data)) {
			if tok == "-lwebp" {
				return "", &runner.ExitError{Name: "cmake", Args: opt.Args, Code: 2}
			}
		}
		return "", os.WriteFile(filepath.Join(buildDir, "libopenjp2.a"), []byte("!<arch>\n"), 0o644)
	case "--install":
		if fc.skipInstall {
			return "", nil
		}
		inc := filepath.Join(installDir, "include", "openjpeg-2.5")
		if err := os.MkdirAll(inc, 0o755); err != nil {
			return "", err
		}
		for _, h := range []string{"openjpeg.h", "opj_config.h"} {
			if err := os.WriteFile(filepath.Join(inc, h), []byte("/* "+h+" */\n"), 0o644); err != nil {
				return "", err
			}
		}
		lib := filepath.Join(installDir, "lib")
		if err := os.MkdirAll(lib, 0o755); err != nil {
			return "", err
		}
		return "", os.WriteFile(filepath.Join(lib, "libopenjp2.a"), []byte("!<arch>\nopenjpeg.c.o\n"), 0o644)
	}

	// Configure.
	if fc.configureErr != nil {
		return "", fc.configureErr
	}
	if err := os.WriteFile(filepath.Join(buildDir, "CMakeCache.txt"),
		[]byte("// Libraries for webp\nWEBP_LIBRARIES:STRING=-lwebp\nCMAKE_BUILD_TYPE:STRING=Release\n"), 0o644); err != nil {
		return "", err
	}
	p := filepath.Join(buildDir, linkTxt)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	return "", os.WriteFile(p, []byte("/usr/bin/gcc -O3 -o libopenjp2.so -lz -lwebp -lpng -lm\n"), 0o644)
}

type stubInspector struct {
	archs   []string
	minOS   string
	members []string
}

func (s *stubInspector) Archs(string) ([]string, error)   { return s.archs, nil }
func (s *stubInspector) MinOS(string) (string, error)     { return s.minOS, nil }
func (s *stubInspector) Members(string) ([]string, error) { return s.members, nil }

type testEnv struct {
	root string
	cfg  *Config
	fake *runner.Fake
	fc   *fakeCmake
	bc   *BuildContext
}

func newTestEnv(t *testing.T, osEnum OSEnum) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.OutputDir = filepath.Join(root, "output")
	cfg.ArchivesDir = filepath.Join(root, "archives")
	cfg.Jobs = 4

	fc := &fakeCmake{}
	fake := &runner.Fake{Handler: fc.handle}
	bc := NewBuildContext(&BuildContextInitOptions{
		Platform: &PlatformInfo{OS: osEnum, Arch: ArchX86_64, Jobs: 8},
		Config:   cfg,
		Runner:   fake,
		Gate:     &gate.Gate{Out: io.Discard},
		Inspector: &stubInspector{
			archs:   []string{"x86_64", "arm64"},
			minOS:   MinMacosVersion,
			members: []string{"openjpeg.c.o"},
		},
	})
	return &testEnv{root: root, cfg: cfg, fake: fake, fc: fc, bc: bc}
}

func (e *testEnv) openjp2Task(t *testing.T) *LibraryBuildTask {
	t.Helper()
	writeSourceArchive(t, filepath.Join(e.cfg.ArchivesDir, "libopenjp2.tar.gz"), "openjpeg-2.5.2")
	return NewLibraryBuildTask(e.cfg, BuiltinLibraries()[0])
}

// snapshotTree maps relative file paths to contents.
func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()
	res := map[string]string{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if info.IsDir() {
			res[rel+"/"] = ""
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		res[rel] = string(b)
		return nil
	})
	require.NoError(t, err)
	return res
}
