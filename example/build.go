package example

import (
	"context"

	"github.com/mgenware/ku-natives"
)

// Ogg is a plain CMake project that needs no link patching.
var Ogg = &ku.LibraryDef{
	Name:      "libogg",
	Archive:   "libogg-1.3.5.tar.gz",
	StaticLib: "libogg.a",
	// Whole include dir, so consumers keep #include <ogg/ogg.h>.
	HeaderGlob: "",
	CmakeArgs:  []string{"-DINSTALL_DOCS=OFF", "-DBUILD_TESTING=OFF"},
}

func BuildOgg(ctx context.Context, bc *ku.BuildContext) (*ku.TaskResult, error) {
	task := ku.NewLibraryBuildTask(bc.Config, Ogg)
	res := ku.RunTask(ctx, bc, task)
	return res, res.Err
}
