package pkgdiff

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type rawOutputs struct {
	dpkgQuery     string
	dpkgFull      string
	pkgConfigList string
	pcPath        string
}

// BaseName is package_list_<host>_<version>_<timestamp>.
func BaseName(s *Snapshot) string {
	return fmt.Sprintf("package_list_%s_%s_%s", safeName(s.Hostname), safeName(s.OSVersion), s.Timestamp.Format(TimestampLayout))
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', '\t', '\n':
			return '-'
		}
		return r
	}, s)
}

func (c *Collector) write(s *Snapshot, raw *rawOutputs) (*Files, error) {
	dir := c.OutDir
	if dir == "" {
		dir = DefaultOutDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := filepath.Join(dir, BaseName(s))
	files := &Files{
		Summary:      base + ".txt",
		All:          base + ".all",
		DpkgFull:     base + ".dpkg_full",
		PkgConfigAll: base + ".pkgconfig_all",
		EnvAll:       base + ".env_all",
	}

	contents := map[string]string{
		files.Summary:      FormatSummary(s),
		files.All:          joinLines(s.Packages),
		files.DpkgFull:     raw.dpkgFull,
		files.PkgConfigAll: formatPkgConfigAll(s, raw),
		files.EnvAll:       formatEnv(s.Env),
	}
	for _, p := range files.List() {
		if err := os.WriteFile(p, []byte(contents[p]), 0o644); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// FormatSummary renders the human-oriented .txt file.
func FormatSummary(s *Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Package list for %s\n", s.Hostname)
	fmt.Fprintf(&b, "hostname: %s\n", s.Hostname)
	fmt.Fprintf(&b, "os_version: %s\n", s.OSVersion)
	fmt.Fprintf(&b, "timestamp: %s\n", s.Timestamp.Format(TimestampLayout))

	b.WriteString("\n## Packages by substring\n")
	for _, sub := range FilterSubstrings {
		fmt.Fprintf(&b, "=== %s ===\n", sub)
		matches := s.Filtered(sub)
		if len(matches) == 0 {
			b.WriteString("(none)\n")
		}
		for _, m := range matches {
			b.WriteString(m + "\n")
		}
	}

	b.WriteString("\n## pkg-config descriptors\n")
	dirs := make([]string, 0, len(s.Descriptors))
	for d := range s.Descriptors {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		fmt.Fprintf(&b, "=== %s ===\n", d)
		names := s.Descriptors[d]
		if len(names) == 0 {
			b.WriteString("(none)\n")
		}
		for _, n := range names {
			b.WriteString(n + "\n")
		}
	}

	b.WriteString("\n## Dependencies\n")
	for _, d := range s.Deps {
		if !d.Found {
			fmt.Fprintf(&b, "%s: NOT FOUND\n", d.Name)
			continue
		}
		fmt.Fprintf(&b, "%s: FOUND\n", d.Name)
		fmt.Fprintf(&b, "  version: %s\n", orNone(d.Version))
		fmt.Fprintf(&b, "  cflags: %s\n", orNone(d.CFlags))
		fmt.Fprintf(&b, "  libs: %s\n", orNone(d.Libs))
	}

	b.WriteString("\n## Environment\n")
	for _, k := range EnvAllowList {
		v, ok := s.Env[k]
		if !ok {
			fmt.Fprintf(&b, "%s=<unset>\n", k)
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	return b.String()
}

// orNone keeps FOUND detail lines non-empty when pkg-config prints nothing.
func orNone(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(none)"
	}
	return v
}

func formatPkgConfigAll(s *Snapshot, raw *rawOutputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# pc_path: %s\n", raw.pcPath)
	b.WriteString("# pkg-config --list-all\n")
	b.WriteString(joinLines(sortedLines(raw.pkgConfigList)))
	b.WriteString("# descriptor files\n")
	dirs := make([]string, 0, len(s.Descriptors))
	for d := range s.Descriptors {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		for _, n := range s.Descriptors[d] {
			b.WriteString(filepath.Join(d, n) + "\n")
		}
	}
	return b.String()
}

func formatEnv(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, env[k])
	}
	return b.String()
}
