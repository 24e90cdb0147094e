package ku

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mgenware/ku-natives/patch"
)

// LibraryDef describes how one third-party library is built. Definitions
// come from ku.yaml or from BuiltinLibraries.
type LibraryDef struct {
	// Example: libopenjp2
	Name string `yaml:"name"`
	// Relative to the archives dir. Empty means <name> plus the first
	// supported archive extension found.
	Archive string `yaml:"archive,omitempty"`
	// Optional BLAKE3 hex digest of the archive.
	Blake3 string `yaml:"blake3,omitempty"`
	// Archive name under <prefix>/lib. Defaults to <name>.a.
	StaticLib string `yaml:"static_lib,omitempty"`
	// Subdir pattern of <prefix>/include whose contents are copied. Empty
	// copies the whole include dir.
	HeaderGlob string `yaml:"header_glob,omitempty"`

	CmakeArgs  []string `yaml:"cmake_args,omitempty"`
	DarwinArgs []string `yaml:"darwin_args,omitempty"`
	LinuxArgs  []string `yaml:"linux_args,omitempty"`
	// Linux only. Each entry becomes -DCMAKE_DISABLE_FIND_PACKAGE_<X>=ON.
	DisablePackages []string `yaml:"disable_packages,omitempty"`
	// Linux only. Applied to generated build files after configure.
	PatchRules []patch.Rule `yaml:"patch_rules,omitempty"`
}

func (d *LibraryDef) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("library definition without a name")
	}
	if strings.ContainsAny(d.Name, `/\`) || d.Name == "." || d.Name == ".." {
		return fmt.Errorf("invalid library name %q", d.Name)
	}
	for _, pkg := range d.DisablePackages {
		if pkg == "" || strings.ContainsAny(pkg, " =") {
			return fmt.Errorf("%s: invalid disable_packages entry %q", d.Name, pkg)
		}
	}
	if _, err := patch.New(d.PatchRules); err != nil {
		return fmt.Errorf("%s: %w", d.Name, err)
	}
	return nil
}

func (d *LibraryDef) StaticLibName() string {
	if d.StaticLib != "" {
		return d.StaticLib
	}
	return d.Name + ".a"
}

// OutputLibFileName is the file name inside output/lib/<name>/.
func (d *LibraryDef) OutputLibFileName() string {
	return d.Name + ".a"
}

func (d *LibraryDef) clone() *LibraryDef {
	c := *d
	c.CmakeArgs = slices.Clone(d.CmakeArgs)
	c.DarwinArgs = slices.Clone(d.DarwinArgs)
	c.LinuxArgs = slices.Clone(d.LinuxArgs)
	c.DisablePackages = slices.Clone(d.DisablePackages)
	c.PatchRules = slices.Clone(d.PatchRules)
	return &c
}

// WebP is detected through stale pkg-config metadata on some Linux hosts
// while libwebp itself is absent. These rules strip it from the link lines.
var webpPatchRules = []patch.Rule{
	{Pattern: "-lwebp"},
	{Pattern: `\S*/libwebp\.(so(\.[0-9]+)*|a)`},
}

var openjp2 = &LibraryDef{
	Name:            "libopenjp2",
	Archive:         "libopenjp2.tar.gz",
	StaticLib:       "libopenjp2.a",
	HeaderGlob:      "openjpeg-*",
	CmakeArgs:       []string{"-DBUILD_STATIC_LIBS=ON"},
	DisablePackages: []string{"WebP"},
	PatchRules:      webpPatchRules,
}

// BuiltinLibraries returns fresh copies of the libraries known without a
// config file.
func BuiltinLibraries() []*LibraryDef {
	return []*LibraryDef{openjp2.clone()}
}
