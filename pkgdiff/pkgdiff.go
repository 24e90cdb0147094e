// Package pkgdiff snapshots installed packages, pkg-config metadata and the
// build environment into flat files meant to be diffed between two hosts.
package pkgdiff

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/mgenware/ku-natives/runner"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

const (
	DefaultOutDir    = "package_lists"
	DefaultOSRelease = "/etc/os-release"
	TimestampLayout  = "20060102_150405"
)

var (
	ErrNotLinux  = errors.New("package comparison only runs on Linux")
	ErrOSRelease = errors.New("cannot read OS release descriptor")
)

// FilterSubstrings select the packages relevant to the optional codec
// dependencies of the image libraries. Matching is case-insensitive and
// deliberately broad.
var FilterSubstrings = []string{"webp", "tiff", "jpeg", "png", "lcms", "openjp", "jbig", "lzma", "zstd", "deflate", "exr", "djvu", "lqr"}

// DependencyNames are queried through pkg-config.
var DependencyNames = []string{"lcms2", "liblqr-1", "ddjvuapi", "OpenEXR", "jbig", "libtiff-4", "libopenjp2"}

// EnvAllowList is recorded in the summary even when unset.
var EnvAllowList = []string{
	"PATH", "PKG_CONFIG_PATH", "LD_LIBRARY_PATH",
	"CPPFLAGS", "CFLAGS", "CXXFLAGS", "LDFLAGS",
	"CC", "CXX",
	"CMAKE_PREFIX_PATH", "CMAKE_INCLUDE_PATH", "CMAKE_LIBRARY_PATH",
}

var DefaultPkgConfigDirs = []string{
	"/usr/lib/pkgconfig",
	"/usr/lib64/pkgconfig",
	"/usr/lib/x86_64-linux-gnu/pkgconfig",
	"/usr/lib/aarch64-linux-gnu/pkgconfig",
	"/usr/share/pkgconfig",
	"/usr/local/lib/pkgconfig",
	"/usr/local/share/pkgconfig",
}

type DepStatus struct {
	Name    string
	Found   bool
	Version string
	CFlags  string
	Libs    string
}

// Snapshot is written once by Collect and not modified afterwards.
type Snapshot struct {
	Hostname  string
	OSVersion string
	Timestamp time.Time
	// "name\tversion" lines from dpkg-query, sorted.
	Packages []string
	// Module names from `pkg-config --list-all`, sorted.
	PkgConfig []string
	// Descriptor file names per search dir. Missing dirs map to nil.
	Descriptors map[string][]string
	Deps        []DepStatus
	Env         map[string]string
}

// Filtered returns the packages containing sub, case-insensitively.
func (s *Snapshot) Filtered(sub string) []string {
	sub = strings.ToLower(sub)
	var res []string
	for _, p := range s.Packages {
		name, _, _ := strings.Cut(p, "\t")
		if strings.Contains(strings.ToLower(name), sub) {
			res = append(res, p)
		}
	}
	return res
}

// Files lists the paths written by one collection.
type Files struct {
	Summary      string
	All          string
	DpkgFull     string
	PkgConfigAll string
	EnvAll       string
}

func (f *Files) List() []string {
	return []string{f.Summary, f.All, f.DpkgFull, f.PkgConfigAll, f.EnvAll}
}

// Collector gathers a Snapshot. Zero-valued fields fall back to the host.
type Collector struct {
	Runner        runner.Runner
	OutDir        string
	GOOS          string
	OSReleasePath string
	PkgConfigDirs []string
	Now           func() time.Time
	Getenv        func(string) string
	Environ       func() []string
	Hostname      func() (string, error)
	// Progress bar output. Nil hides the bar.
	Progress io.Writer
	Logger   logrus.FieldLogger
}

func (c *Collector) log() logrus.FieldLogger {
	if c.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return c.Logger
}

// Collect checks the host, gathers everything and writes the files.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, *Files, error) {
	goos := c.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos != "linux" {
		return nil, nil, fmt.Errorf("%w (running on %s)", ErrNotLinux, goos)
	}
	relPath := c.OSReleasePath
	if relPath == "" {
		relPath = DefaultOSRelease
	}
	ver, err := ReadOSVersion(relPath)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	snap := &Snapshot{
		Hostname:  c.hostname(),
		OSVersion: ver,
		Timestamp: now(),
	}

	var bar *progressbar.ProgressBar
	if c.Progress != nil {
		bar = progressbar.NewOptions(5,
			progressbar.OptionSetWriter(c.Progress),
			progressbar.OptionSetDescription("Collecting"),
			progressbar.OptionShowCount(),
		)
	}
	step := func(desc string) {
		if bar != nil {
			bar.Describe(desc)
			_ = bar.Add(1)
		}
	}

	raw := &rawOutputs{}
	raw.dpkgQuery = c.bestEffort(ctx, "dpkg-query", "-W", "-f=${Package}\t${Version}\n")
	snap.Packages = sortedLines(raw.dpkgQuery)
	step("packages")

	raw.dpkgFull = c.bestEffort(ctx, "dpkg", "-l")
	step("dpkg")

	raw.pkgConfigList = c.bestEffort(ctx, "pkg-config", "--list-all")
	raw.pcPath = strings.TrimSpace(c.bestEffort(ctx, "pkg-config", "--variable", "pc_path", "pkg-config"))
	for _, line := range sortedLines(raw.pkgConfigList) {
		if name, _, _ := strings.Cut(line, " "); name != "" {
			snap.PkgConfig = append(snap.PkgConfig, name)
		}
	}
	snap.Descriptors = c.descriptors()
	step("pkg-config")

	for _, name := range DependencyNames {
		snap.Deps = append(snap.Deps, c.dep(ctx, name))
	}
	step("dependencies")

	snap.Env = c.environ()
	step("environment")

	files, err := c.write(snap, raw)
	if err != nil {
		return nil, nil, err
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(c.Progress)
	}
	return snap, files, nil
}

// ReadOSVersion returns VERSION_ID from an os-release file, or "unknown"
// when the file has no such key.
func ReadOSVersion(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOSRelease, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if ok && key == "VERSION_ID" {
			return strings.Trim(value, `"'`), nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOSRelease, err)
	}
	return "unknown", nil
}

func (c *Collector) hostname() string {
	getenv := os.Getenv
	if c.Getenv != nil {
		getenv = c.Getenv
	}
	if h := getenv("HOSTNAME"); h != "" {
		return h
	}
	hostnameFn := os.Hostname
	if c.Hostname != nil {
		hostnameFn = c.Hostname
	}
	if h, err := hostnameFn(); err == nil && h != "" {
		return h
	}
	return "unknown"
}

// bestEffort returns a tool's stdout; a failing or missing tool yields "".
func (c *Collector) bestEffort(ctx context.Context, name string, args ...string) string {
	out, err := c.Runner.Output(ctx, &runner.SpawnOpt{Name: name, Args: args})
	if err != nil {
		c.log().WithError(err).Infof("%s returned nothing", name)
		return ""
	}
	return out
}

func (c *Collector) dep(ctx context.Context, name string) DepStatus {
	st := DepStatus{Name: name}
	if _, err := c.Runner.Output(ctx, &runner.SpawnOpt{Name: "pkg-config", Args: []string{"--exists", name}}); err != nil {
		c.log().WithField("dep", name).Debug("not found")
		return st
	}
	st.Found = true
	st.Version = strings.TrimSpace(c.bestEffort(ctx, "pkg-config", "--modversion", name))
	st.CFlags = strings.TrimSpace(c.bestEffort(ctx, "pkg-config", "--cflags", name))
	st.Libs = strings.TrimSpace(c.bestEffort(ctx, "pkg-config", "--libs", name))
	return st
}

func (c *Collector) descriptors() map[string][]string {
	dirs := c.PkgConfigDirs
	if dirs == nil {
		dirs = DefaultPkgConfigDirs
	}
	res := make(map[string][]string, len(dirs))
	for _, dir := range dirs {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.pc"))
		var names []string
		for _, m := range matches {
			names = append(names, filepath.Base(m))
		}
		sort.Strings(names)
		res[dir] = names
	}
	return res
}

func (c *Collector) environ() map[string]string {
	environ := os.Environ
	if c.Environ != nil {
		environ = c.Environ
	}
	res := map[string]string{}
	for _, kv := range environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			res[k] = v
		}
	}
	return res
}

func sortedLines(s string) []string {
	seen := map[string]bool{}
	var res []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		res = append(res, line)
	}
	sort.Strings(res)
	return res
}
