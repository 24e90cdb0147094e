// Package inspect reads architecture, deployment target and member lists out
// of built static archives.
package inspect

import (
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"github.com/mgenware/j9/v3"
)

var ErrMismatch = errors.New("artifact check failed")

type Inspector interface {
	// Archs lists the architectures in a (possibly universal) archive.
	Archs(file string) ([]string, error)
	// MinOS returns the first minos load command value.
	MinOS(file string) (string, error)
	// Members lists the object files in an ar archive.
	Members(file string) ([]string, error)
}

// TunnelInspector shells out to lipo, otool and ar through a j9 tunnel.
type TunnelInspector struct {
	Tunnel *j9.Tunnel
}

func NewTunnelInspector(t *j9.Tunnel) *TunnelInspector {
	if t == nil {
		t = j9.NewTunnel(j9.NewLocalNode(), j9.NewConsoleLogger())
	}
	return &TunnelInspector{Tunnel: t}
}

func (ti *TunnelInspector) shell(cmd string) (string, error) {
	ti.Tunnel.Logger().Log(j9.LogLevelVerbose, "[inspect] "+cmd)
	output, err := ti.Tunnel.ShellRaw(&j9.ShellOpt{Cmd: cmd})
	if err != nil {
		if msg := strings.TrimSpace(string(output)); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", cmd, err, msg)
		}
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	return strings.TrimSpace(string(output)), nil
}

func (ti *TunnelInspector) Archs(file string) ([]string, error) {
	out, err := ti.shell("lipo -archs " + Quote(file))
	if err != nil {
		return nil, err
	}
	return ParseArchs(out), nil
}

func (ti *TunnelInspector) MinOS(file string) (string, error) {
	out, err := ti.shell("otool -l " + Quote(file) + " | grep -m 1 minos")
	if err != nil {
		// grep exits 1 when nothing matched.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", fmt.Errorf("%w: no minos load command in %s", ErrMismatch, file)
		}
		return "", err
	}
	return ParseMinOS(out)
}

func (ti *TunnelInspector) Members(file string) ([]string, error) {
	out, err := ti.shell("ar t " + Quote(file))
	if err != nil {
		return nil, err
	}
	return ParseMembers(out), nil
}

// ParseArchs splits `lipo -archs` output, e.g. "x86_64 arm64".
func ParseArchs(out string) []string {
	return strings.Fields(out)
}

// ParseMinOS extracts the version from an otool line like "    minos 11.0".
func ParseMinOS(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "minos" {
			return fields[1], nil
		}
	}
	return "", fmt.Errorf("cannot find minos in %q", out)
}

// ParseMembers returns the non-empty lines of `ar t` output, skipping the
// symbol table entries some ar implementations print.
func ParseMembers(out string) []string {
	var res []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "/" || line == "//" || strings.HasPrefix(line, "__.SYMDEF") {
			continue
		}
		res = append(res, line)
	}
	return res
}

// Quote single-quotes s for /bin/sh.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// CheckUniversal requires every arch in want to be present in file.
func CheckUniversal(i Inspector, file string, want []string) error {
	got, err := i.Archs(file)
	if err != nil {
		return err
	}
	for _, a := range want {
		if !slices.Contains(got, a) {
			return fmt.Errorf("%w: %s has archs %v, expected %v", ErrMismatch, file, got, want)
		}
	}
	return nil
}

func CheckMinOS(i Inspector, file string, want string) error {
	got, err := i.MinOS(file)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: unexpected min OS version %s, expected %s for file %s", ErrMismatch, got, want, file)
	}
	return nil
}

// CheckMembers requires file to be a non-empty archive.
func CheckMembers(i Inspector, file string) error {
	members, err := i.Members(file)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return fmt.Errorf("%w: %s has no members", ErrMismatch, file)
	}
	return nil
}
