package pkgdiff

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mgenware/ku-natives/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

// hostTools answers like an Ubuntu host with lcms2 and libtiff-4 installed.
func hostTools(opt *runner.SpawnOpt) (string, error) {
	notFound := &runner.ExitError{Name: opt.Name, Args: opt.Args, Code: 1}
	switch opt.Name {
	case "dpkg-query":
		return "libwebp7\t1.3.2\nlibtiff6\t4.5.1\nliblcms2-2\t2.14\nzlib1g\t1.3\nlibtiff-dev\t4.5.1\n", nil
	case "dpkg":
		return "ii  libwebp7  1.3.2  amd64  Lossy compression of digital photographic images\n", nil
	case "pkg-config":
		installed := map[string][3]string{
			"lcms2":     {"2.14", "", "-llcms2"},
			"libtiff-4": {"4.5.1", "-I/usr/include/x86_64-linux-gnu", "-ltiff"},
		}
		if opt.Args[0] == "--list-all" {
			return "lcms2      lcms2 - LCMS Color Management Library\nlibtiff-4  libtiff - Tag Image File Format\n", nil
		}
		if opt.Args[0] == "--variable" {
			return "/usr/local/lib/pkgconfig:/usr/lib/pkgconfig\n", nil
		}
		name := opt.Args[len(opt.Args)-1]
		v, ok := installed[name]
		if !ok {
			return "", notFound
		}
		switch opt.Args[0] {
		case "--exists":
			return "", nil
		case "--modversion":
			return v[0] + "\n", nil
		case "--cflags":
			return v[1] + "\n", nil
		case "--libs":
			return v[2] + "\n", nil
		}
	}
	return "", &runner.ExitError{Name: opt.Name, Code: 127}
}

func newCollector(t *testing.T) (*Collector, string) {
	t.Helper()
	dir := t.TempDir()
	osRelease := filepath.Join(dir, "os-release")
	require.NoError(t, os.WriteFile(osRelease, []byte("NAME=\"Ubuntu\"\nVERSION_ID=\"22.04\"\nID=ubuntu\n"), 0o644))

	pcDir := filepath.Join(dir, "pkgconfig")
	require.NoError(t, os.MkdirAll(pcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pcDir, "lcms2.pc"), []byte("Name: lcms2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pcDir, "libwebp.pc"), []byte("Name: libwebp\n"), 0o644))

	return &Collector{
		Runner:        &runner.Fake{Handler: hostTools},
		OutDir:        filepath.Join(dir, DefaultOutDir),
		GOOS:          "linux",
		OSReleasePath: osRelease,
		PkgConfigDirs: []string{pcDir, filepath.Join(dir, "missing")},
		Now:           func() time.Time { return fixedNow },
		Getenv: func(k string) string {
			if k == "HOSTNAME" {
				return "ci-runner"
			}
			return ""
		},
		Environ: func() []string {
			return []string{"PATH=/usr/bin:/bin", "CC=gcc", "HOME=/root"}
		},
	}, dir
}

func TestCollectWritesFiles(t *testing.T) {
	c, dir := newCollector(t)
	snap, files, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ci-runner", snap.Hostname)
	assert.Equal(t, "22.04", snap.OSVersion)

	base := filepath.Join(dir, DefaultOutDir, "package_list_ci-runner_22.04_20240305_140709")
	assert.Equal(t, base+".txt", files.Summary)
	assert.Equal(t, base+".all", files.All)
	assert.Equal(t, base+".dpkg_full", files.DpkgFull)
	assert.Equal(t, base+".pkgconfig_all", files.PkgConfigAll)
	assert.Equal(t, base+".env_all", files.EnvAll)
	for _, f := range files.List() {
		assert.FileExists(t, f)
	}

	all, err := os.ReadFile(files.All)
	require.NoError(t, err)
	assert.Contains(t, string(all), "libwebp7\t1.3.2")

	env, err := os.ReadFile(files.EnvAll)
	require.NoError(t, err)
	assert.Equal(t, "CC=gcc\nHOME=/root\nPATH=/usr/bin:/bin\n", string(env))

	pc, err := os.ReadFile(files.PkgConfigAll)
	require.NoError(t, err)
	assert.Contains(t, string(pc), "lcms2.pc")
	assert.Contains(t, string(pc), "/usr/local/lib/pkgconfig:/usr/lib/pkgconfig")
}

func TestSummaryDependencyLines(t *testing.T) {
	c, _ := newCollector(t)
	_, files, err := c.Collect(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(files.Summary)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")

	for _, name := range DependencyNames {
		count := 0
		idx := -1
		for i, l := range lines {
			if l == name+": FOUND" || l == name+": NOT FOUND" {
				count++
				idx = i
			}
		}
		require.Equal(t, 1, count, "status lines for %s", name)

		if strings.HasSuffix(lines[idx], ": FOUND") {
			require.Greater(t, len(lines), idx+3)
			assert.True(t, strings.HasPrefix(lines[idx+1], "  version: "))
			assert.True(t, strings.HasPrefix(lines[idx+2], "  cflags: "))
			assert.True(t, strings.HasPrefix(lines[idx+3], "  libs: "))
			for _, l := range lines[idx+1 : idx+4] {
				assert.False(t, strings.HasSuffix(l, ": "), "empty detail line %q for %s", l, name)
			}
		}
	}
	assert.Contains(t, lines, "lcms2: FOUND")
	assert.Contains(t, lines, "  libs: -ltiff")
	// lcms2 has no cflags.
	assert.Contains(t, lines, "  cflags: (none)")
	assert.Contains(t, lines, "OpenEXR: NOT FOUND")
}

func TestSummaryFiltersAndEnv(t *testing.T) {
	c, _ := newCollector(t)
	snap, files, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"libtiff-dev\t4.5.1", "libtiff6\t4.5.1"}, snap.Filtered("tiff"))
	assert.Empty(t, snap.Filtered("djvu"))

	data, err := os.ReadFile(files.Summary)
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, "=== webp ===\nlibwebp7\t1.3.2\n")
	assert.Contains(t, s, "=== djvu ===\n(none)\n")
	assert.Contains(t, s, "PATH=/usr/bin:/bin\n")
	assert.Contains(t, s, "PKG_CONFIG_PATH=<unset>\n")
	assert.NotContains(t, s, "HOME=")
}

func TestCollectRequiresLinux(t *testing.T) {
	c, _ := newCollector(t)
	c.GOOS = "darwin"
	_, _, err := c.Collect(context.Background())
	assert.ErrorIs(t, err, ErrNotLinux)
	assert.Empty(t, c.Runner.(*runner.Fake).Calls())
}

func TestCollectUnreadableOSRelease(t *testing.T) {
	c, dir := newCollector(t)
	c.OSReleasePath = filepath.Join(dir, "nope")
	_, _, err := c.Collect(context.Background())
	assert.ErrorIs(t, err, ErrOSRelease)
	assert.NoDirExists(t, c.OutDir)
}

func TestCollectWithoutTools(t *testing.T) {
	c, _ := newCollector(t)
	c.Runner = &runner.Fake{Handler: func(opt *runner.SpawnOpt) (string, error) {
		return "", &runner.ExitError{Name: opt.Name, Code: 127}
	}}
	snap, files, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Packages)
	for _, d := range snap.Deps {
		assert.False(t, d.Found)
	}
	assert.FileExists(t, files.Summary)
}

func TestHostnameFallback(t *testing.T) {
	c := &Collector{
		Getenv:   func(string) string { return "" },
		Hostname: func() (string, error) { return "build-01", nil },
	}
	assert.Equal(t, "build-01", c.hostname())
}

func TestReadOSVersion(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "os-release")
	require.NoError(t, os.WriteFile(p, []byte("ID=debian\n"), 0o644))
	v, err := ReadOSVersion(p)
	require.NoError(t, err)
	assert.Equal(t, "unknown", v)
}
