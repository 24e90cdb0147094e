package ku

import (
	"path/filepath"
)

const MinMacosVersion = "11.0"

const (
	DefaultOutputDir   = "output"
	DefaultArchivesDir = "archives"
	DefaultConfigFile  = "ku.yaml"
)

type OSEnum string

const (
	OSDarwin OSEnum = "darwin"
	OSLinux  OSEnum = "linux"
)

var SupportedOSes = map[OSEnum]bool{
	OSDarwin: true,
	OSLinux:  true,
}

type ArchEnum string

const (
	ArchArm64  ArchEnum = "arm64"
	ArchX86_64 ArchEnum = "x86_64"
)

var SupportedArchs = map[ArchEnum]bool{
	ArchArm64:  true,
	ArchX86_64: true,
}

// Archs merged into one universal archive on Darwin.
var UniversalArchs = []ArchEnum{ArchArm64, ArchX86_64}

func GetIncludeDir(outputDir, lib string) string {
	return filepath.Join(outputDir, "include", lib)
}

func GetLibDir(outputDir, lib string) string {
	return filepath.Join(outputDir, "lib", lib)
}

func GetSrcDir(outputDir, lib string) string {
	return filepath.Join(outputDir, "src", lib)
}

// GetBuildDir is where cmake generates into; it lives under the re-staged src dir.
func GetBuildDir(srcDir string) string {
	return filepath.Join(srcDir, "_build")
}

func GetInstallDir(srcDir string) string {
	return filepath.Join(srcDir, "_install")
}

func archStrings(archs []ArchEnum) []string {
	res := make([]string, 0, len(archs))
	for _, a := range archs {
		res = append(res, string(a))
	}
	return res
}
