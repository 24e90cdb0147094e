package ku

import (
	"fmt"
	"runtime"
	"strings"
)

// PlatformInfo is detected once at startup and never changed afterwards.
type PlatformInfo struct {
	OS   OSEnum
	Arch ArchEnum
	Jobs int
}

func (p *PlatformInfo) IsDarwin() bool {
	return p.OS == OSDarwin
}

func (p *PlatformInfo) IsLinux() bool {
	return p.OS == OSLinux
}

func (p *PlatformInfo) String() string {
	return fmt.Sprintf("%s/%s (jobs: %d)", p.OS, p.Arch, p.Jobs)
}

// ParseOS accepts "darwin", "macos" and "linux", case-insensitively.
func ParseOS(s string) (OSEnum, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "macos" {
		v = string(OSDarwin)
	}
	res := OSEnum(v)
	if !SupportedOSes[res] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOS, s)
	}
	return res, nil
}

// DetectPlatform resolves the host platform. A non-empty override replaces
// the host OS; jobs <= 0 means one job per CPU.
func DetectPlatform(override string, jobs int) (*PlatformInfo, error) {
	osName := override
	if osName == "" {
		osName = runtime.GOOS
	}
	hostOS, err := ParseOS(osName)
	if err != nil {
		return nil, err
	}
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	return &PlatformInfo{OS: hostOS, Arch: hostArch(), Jobs: jobs}, nil
}

func hostArch() ArchEnum {
	if m, err := hostMachine(); err == nil && m != "" {
		return NormalizeArch(m)
	}
	return NormalizeArch(runtime.GOARCH)
}

// NormalizeArch maps uname and GOARCH spellings to ArchEnum. Unknown values
// are kept as-is.
func NormalizeArch(s string) ArchEnum {
	switch strings.ToLower(s) {
	case "arm64", "aarch64":
		return ArchArm64
	case "x86_64", "amd64", "x64":
		return ArchX86_64
	}
	return ArchEnum(s)
}
