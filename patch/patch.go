// Package patch strips unwanted link dependencies from CMake-generated build
// files after configure and before build.
package patch

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

const CacheFileName = "CMakeCache.txt"

// Rule replaces every whitespace-delimited token that fully matches Pattern.
// An empty Replacement removes the token and one adjacent whitespace run.
type Rule struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

type compiledRule struct {
	re          *regexp.Regexp
	replacement string
}

// Result summarizes one patch run. Modified holds paths relative to the
// build dir.
type Result struct {
	Scanned  int
	Modified []string
	Removed  int
}

// Changed reports whether any file was rewritten.
func (r *Result) Changed() bool {
	return len(r.Modified) > 0
}

type Patcher struct {
	Logger logrus.FieldLogger

	rules []compiledRule
}

func New(rules []Rule) (*Patcher, error) {
	p := &Patcher{}
	for _, r := range rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("patch: empty pattern")
		}
		re, err := regexp.Compile("^(?:" + r.Pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("patch: invalid pattern %q: %w", r.Pattern, err)
		}
		p.rules = append(p.rules, compiledRule{re: re, replacement: r.Replacement})
	}
	return p, nil
}

type fileKind int

const (
	kindNone fileKind = iota
	kindCache
	kindText
)

func kindOf(name string) fileKind {
	switch {
	case name == CacheFileName:
		return kindCache
	case name == "link.txt", name == "build.ninja":
		return kindText
	}
	switch filepath.Ext(name) {
	case ".make", ".rsp":
		return kindText
	}
	return kindNone
}

// Run patches the cache and generated link files under buildDir. Finding
// nothing to remove is a normal outcome.
func (p *Patcher) Run(buildDir string) (*Result, error) {
	res := &Result{}
	if len(p.rules) == 0 {
		return res, nil
	}
	err := filepath.WalkDir(buildDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		kind := kindOf(d.Name())
		if kind == kindNone {
			return nil
		}
		res.Scanned++
		n, err := p.patchFile(path, kind)
		if err != nil {
			return err
		}
		if n > 0 {
			rel, relErr := filepath.Rel(buildDir, path)
			if relErr != nil {
				rel = path
			}
			res.Modified = append(res.Modified, rel)
			res.Removed += n
			p.log().WithField("file", rel).Debugf("patched %d reference(s)", n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !res.Changed() {
		p.log().Infof("no unwanted link references in %d generated file(s)", res.Scanned)
	}
	return res, nil
}

func (p *Patcher) patchFile(path string, kind fileKind) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var out string
	var n int
	if kind == kindCache {
		out, n = p.PatchCache(string(data))
	} else {
		out, n = p.PatchText(string(data))
	}
	if n == 0 || out == string(data) {
		return 0, nil
	}
	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return 0, err
	}
	return n, nil
}

// PatchText applies the rules to every line of a generated build file.
func (p *Patcher) PatchText(content string) (string, int) {
	return mapLines(content, p.substitute)
}

// PatchCache rewrites only the VALUE part of KEY:TYPE=VALUE cache entries.
// CMake list values are handled item by item; items emptied by a removal are
// dropped from the list.
func (p *Patcher) PatchCache(content string) (string, int) {
	return mapLines(content, func(line string) (string, int) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			return line, 0
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return line, 0
		}
		eq := strings.IndexByte(line[colon:], '=')
		if eq < 0 {
			return line, 0
		}
		eq += colon
		head, value := line[:eq+1], line[eq+1:]

		items := strings.Split(value, ";")
		kept := items[:0]
		total := 0
		for _, item := range items {
			out, n := p.substitute(item)
			total += n
			if n > 0 && strings.TrimSpace(out) == "" {
				continue
			}
			kept = append(kept, out)
		}
		if total == 0 {
			return line, 0
		}
		return head + strings.Join(kept, ";"), total
	})
}

func mapLines(content string, fn func(string) (string, int)) (string, int) {
	lines := strings.Split(content, "\n")
	total := 0
	for i, line := range lines {
		cr := strings.HasSuffix(line, "\r")
		if cr {
			line = line[:len(line)-1]
		}
		out, n := fn(line)
		if n == 0 {
			continue
		}
		total += n
		if cr {
			out += "\r"
		}
		lines[i] = out
	}
	if total == 0 {
		return content, 0
	}
	return strings.Join(lines, "\n"), total
}

type segment struct {
	text  string
	space bool
	drop  bool
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

func split(s string) []segment {
	var segs []segment
	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || isSpace(s[i]) != isSpace(s[start]) {
			segs = append(segs, segment{text: s[start:i], space: isSpace(s[start])})
			start = i
		}
	}
	return segs
}

// substitute applies the rules token by token, leaving every other byte of s
// untouched.
func (p *Patcher) substitute(s string) (string, int) {
	if s == "" {
		return s, 0
	}
	segs := split(s)
	n := 0
	for i := range segs {
		if segs[i].space {
			continue
		}
		for _, r := range p.rules {
			if !r.re.MatchString(segs[i].text) {
				continue
			}
			n++
			if r.replacement == "" {
				segs[i].drop = true
				break
			}
			segs[i].text = r.re.ReplaceAllString(segs[i].text, r.replacement)
		}
	}
	if n == 0 {
		return s, 0
	}
	for i := range segs {
		if segs[i].space || !segs[i].drop {
			continue
		}
		if i+1 < len(segs) && segs[i+1].space && !segs[i+1].drop {
			segs[i+1].drop = true
			continue
		}
		// Nearest kept whitespace run to the left, skipping what is
		// already dropped.
		for j := i - 1; j >= 0; j-- {
			if !segs[j].drop {
				if segs[j].space {
					segs[j].drop = true
				}
				break
			}
		}
	}
	var b strings.Builder
	for _, seg := range segs {
		if !seg.drop {
			b.WriteString(seg.text)
		}
	}
	return b.String(), n
}

func (p *Patcher) log() logrus.FieldLogger {
	if p.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return p.Logger
}
